package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pawel/toolgate/internal/domain"
)

// Memory is an in-memory Store used for tests and the standalone local
// mode. It implements the same atomic semantics as the durable backends
// under a single mutex.
type Memory struct {
	mu    sync.RWMutex
	jobs  map[string]*domain.JobRecord
	links map[string]*domain.Link
}

func NewMemory() *Memory {
	return &Memory{
		jobs:  make(map[string]*domain.JobRecord),
		links: make(map[string]*domain.Link),
	}
}

func (m *Memory) CreateJob(ctx context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.jobs[rec.JobID]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	m.jobs[rec.JobID] = &cp
	return nil
}

func (m *Memory) GetJob(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *Memory) MarkItemDone(ctx context.Context, jobID, itemID string) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if slices.Contains(rec.Seen, itemID) {
		return nil, ErrConditionFailed
	}
	rec.Seen = append(rec.Seen, itemID)
	rec.Processed++
	rec.UpdatedAt = time.Now().UTC()
	return copyRecord(rec), nil
}

func (m *Memory) MarkItemFailed(ctx context.Context, jobID string, itemErr domain.ItemError) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if slices.Contains(rec.Seen, itemErr.ItemID) {
		return nil, ErrConditionFailed
	}
	rec.Seen = append(rec.Seen, itemErr.ItemID)
	rec.Failed++
	rec.Errors = append(rec.Errors, itemErr)
	rec.UpdatedAt = time.Now().UTC()
	return copyRecord(rec), nil
}

func (m *Memory) SetTerminal(ctx context.Context, jobID string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != domain.StatusInProgress {
		// Already terminal, the racing write is a no-op.
		return nil
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) StaleJobIDs(ctx context.Context, olderThan time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	for id, rec := range m.jobs {
		if rec.Status == domain.StatusInProgress && rec.UpdatedAt.Before(olderThan) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	for id, rec := range m.jobs {
		if rec.ExpiresAt.Before(now) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateLink(ctx context.Context, link *domain.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.links[link.Code]; ok {
		return ErrAlreadyExists
	}
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *Memory) GetLink(ctx context.Context, code string) (*domain.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	link, ok := m.links[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (m *Memory) IncrementClicks(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	link, ok := m.links[code]
	if !ok {
		return ErrNotFound
	}
	link.Clicks++
	return nil
}

func copyRecord(rec *domain.JobRecord) *domain.JobRecord {
	cp := *rec
	cp.Errors = slices.Clone(rec.Errors)
	cp.Seen = slices.Clone(rec.Seen)
	return &cp
}

var _ Store = (*Memory)(nil)
