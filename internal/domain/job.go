package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a bulk submission job.
type JobStatus string

const (
	StatusInProgress JobStatus = "in-progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemError records one permanently failed work item on a job.
type ItemError struct {
	ItemID  string `json:"itemId"`
	Date    string `json:"date"`
	Message string `json:"errorMessage"`
}

// JobRecord is the shared progress record for one bulk submission.
// Total is fixed at creation; Processed, Failed, Errors and Status are
// mutated only through the store's atomic primitives. Seen holds the item
// IDs already counted, so a redelivered item increments nothing twice.
type JobRecord struct {
	JobID     string      `json:"jobId" gorm:"primaryKey;column:job_id" dynamodbav:"jobId"`
	Total     int         `json:"total" dynamodbav:"total"`
	Processed int         `json:"processed" dynamodbav:"processed"`
	Failed    int         `json:"failed" dynamodbav:"failed"`
	Status    JobStatus   `json:"status" dynamodbav:"jobStatus"`
	Errors    []ItemError `json:"errors" gorm:"serializer:json" dynamodbav:"errors"`
	Seen      []string    `json:"-" gorm:"serializer:json" dynamodbav:"seen,stringset,omitempty"`
	CreatedAt time.Time   `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt" dynamodbav:"updatedAt,unixtime"`
	ExpiresAt time.Time   `json:"-" gorm:"index" dynamodbav:"expiresAt,unixtime"`
}

// NewJobRecord creates an in-progress record for a job with the given
// number of work items. The job ID is a UUIDv7 so records sort by
// creation time.
func NewJobRecord(total int, retention time.Duration) *JobRecord {
	now := time.Now().UTC()
	return &JobRecord{
		JobID:     uuid.Must(uuid.NewV7()).String(),
		Total:     total,
		Processed: 0,
		Failed:    0,
		Status:    StatusInProgress,
		Errors:    []ItemError{},
		Seen:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(retention),
	}
}

// Done reports whether every work item has been accounted for.
func (r *JobRecord) Done() bool {
	return r.Processed+r.Failed >= r.Total
}

// TerminalStatus derives the final status from the counters.
func (r *JobRecord) TerminalStatus() JobStatus {
	if r.Failed == 0 {
		return StatusCompleted
	}
	return StatusFailed
}
