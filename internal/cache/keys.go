package cache

import "fmt"

// JobStatusKey is the cache key for a job status snapshot.
func JobStatusKey(jobID string) string {
	return fmt.Sprintf("toolgate:job:%s:status", jobID)
}
