package job

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/pawel/toolgate/internal/cache"
	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/store"
)

// ErrNotFound means no job record exists for the given ID.
var ErrNotFound = errors.New("job: not found")

// Snapshot is the polling view of a job record.
type Snapshot struct {
	JobID     string             `json:"jobId"`
	Total     int                `json:"total"`
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Status    domain.JobStatus   `json:"status"`
	Progress  int                `json:"progress"`
	Errors    []domain.ItemError `json:"errors"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// StatusReader serves job status snapshots. Purely read-only; a short
// cache TTL in front of the store absorbs polling loops.
type StatusReader struct {
	store store.RecordStore
	cache cache.Cache
	ttl   time.Duration
}

func NewStatusReader(st store.RecordStore, ca cache.Cache, ttl time.Duration) *StatusReader {
	return &StatusReader{store: st, cache: ca, ttl: ttl}
}

// Get returns the snapshot for a job or ErrNotFound.
func (r *StatusReader) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	key := cache.JobStatusKey(jobID)
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
	} else if err != nil {
		logger.CtxWarn(ctx, "Status cache lookup failed for %s: %v", jobID, err)
	}

	rec, err := r.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(rec)
	if data, err := json.Marshal(snap); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			logger.CtxWarn(ctx, "Status cache write failed for %s: %v", jobID, err)
		}
	}
	return snap, nil
}

func newSnapshot(rec *domain.JobRecord) *Snapshot {
	errs := rec.Errors
	if errs == nil {
		errs = []domain.ItemError{}
	}
	return &Snapshot{
		JobID:     rec.JobID,
		Total:     rec.Total,
		Processed: rec.Processed,
		Failed:    rec.Failed,
		Status:    rec.Status,
		Progress:  Progress(rec.Processed, rec.Failed, rec.Total),
		Errors:    errs,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Progress computes the completion percentage, 0 for an empty job.
func Progress(processed, failed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(processed+failed) / float64(total)))
}
