package store

import (
	"context"
	"errors"
	"time"

	"github.com/pawel/toolgate/internal/domain"
)

var (
	// ErrNotFound means no record exists for the given key.
	ErrNotFound = errors.New("store: record not found")

	// ErrAlreadyExists means a conditional create hit an existing record.
	ErrAlreadyExists = errors.New("store: record already exists")

	// ErrConditionFailed means an atomic update's condition did not hold,
	// e.g. the work item was already counted or the job is already terminal.
	ErrConditionFailed = errors.New("store: condition failed")
)

// RecordStore is the job progress store. It deliberately exposes only
// atomic primitives: counters are never read, modified and written back
// in application memory, so concurrent workers stay correct.
type RecordStore interface {
	// CreateJob writes a new record, failing with ErrAlreadyExists if the
	// job ID is taken.
	CreateJob(ctx context.Context, rec *domain.JobRecord) error

	// GetJob returns the current record or ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*domain.JobRecord, error)

	// MarkItemDone atomically counts one successful item. The item ID is
	// recorded so a redelivered item returns ErrConditionFailed instead of
	// double-counting. Returns the updated record.
	MarkItemDone(ctx context.Context, jobID, itemID string) (*domain.JobRecord, error)

	// MarkItemFailed atomically counts one permanently failed item and
	// appends its error entry. Dedup as MarkItemDone. Returns the updated
	// record.
	MarkItemFailed(ctx context.Context, jobID string, itemErr domain.ItemError) (*domain.JobRecord, error)

	// SetTerminal sets the final status, conditional on the record still
	// being in progress. Racing writers converge: the losing write is a
	// silent no-op.
	SetTerminal(ctx context.Context, jobID string, status domain.JobStatus) error

	// StaleJobIDs lists in-progress jobs not updated since the cutoff.
	StaleJobIDs(ctx context.Context, olderThan time.Time) ([]string, error)

	// DeleteExpired removes records past their retention. Backends with
	// native TTL (DynamoDB) may treat this as a no-op.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// LinkStore persists short links and their click counters.
type LinkStore interface {
	CreateLink(ctx context.Context, link *domain.Link) error
	GetLink(ctx context.Context, code string) (*domain.Link, error)
	// IncrementClicks atomically bumps the click counter.
	IncrementClicks(ctx context.Context, code string) error
}

// Store combines every persistence capability of the platform.
type Store interface {
	RecordStore
	LinkStore
}
