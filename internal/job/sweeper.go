package job

import (
	"context"
	"errors"
	"time"

	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/store"
)

// Sweeper periodically closes in-progress jobs that have been idle past
// the staleness threshold (partial dispatch leaves no other exit) and
// removes records past retention on backends without native TTL. Jobs
// whose counters already cover the total keep their derived status;
// under-counted jobs are branded failed.
type Sweeper struct {
	store     store.RecordStore
	staleness time.Duration
	interval  time.Duration
}

func NewSweeper(st store.RecordStore, staleness, interval time.Duration) *Sweeper {
	return &Sweeper{store: st, staleness: staleness, interval: interval}
}

// Run sweeps on the configured interval until the context is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()

	ids, err := s.store.StaleJobIDs(ctx, now.Add(-s.staleness))
	if err != nil {
		logger.CtxError(ctx, "Stale job scan failed: %v", err)
	}
	for _, id := range ids {
		rec, err := s.store.GetJob(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.CtxError(ctx, "Reading stale job %s failed: %v", id, err)
			continue
		}
		// A job whose counters already cover the total just missed its
		// terminal write; it keeps the status its counters derive. Only
		// genuinely under-counted jobs are branded failed.
		status := domain.StatusFailed
		if rec.Done() {
			status = rec.TerminalStatus()
		}
		if err := s.store.SetTerminal(ctx, id, status); err != nil {
			logger.CtxError(ctx, "Force-closing stale job %s failed: %v", id, err)
			continue
		}
		logger.CtxWarn(ctx, "Force-closed stale job %s as %s after %s without progress", id, status, s.staleness)
	}

	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		logger.CtxError(ctx, "Expiry sweep failed: %v", err)
	}
	if n > 0 {
		logger.CtxInfo(ctx, "Expired %d job records", n)
	}
}
