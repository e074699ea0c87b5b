package job

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/store"
)

// Reconciler drains the dead-letter queue and books each dead item as a
// failure on its job record, so exhausted redeliveries cannot leave a job
// stuck below its total forever.
type Reconciler struct {
	store store.RecordStore
}

func NewReconciler(st store.RecordStore) *Reconciler {
	return &Reconciler{store: st}
}

// HandleBatch is the dead-letter queue handler.
func (r *Reconciler) HandleBatch(ctx context.Context, batch []queue.Message) []string {
	var failed []string
	for _, msg := range batch {
		var item domain.WorkItem
		if err := json.Unmarshal(msg.Body, &item); err != nil {
			logger.CtxError(ctx, "Dropping unparseable dead-letter message %s: %v", msg.ID, err)
			continue
		}
		if err := r.reconcile(ctx, item); err != nil {
			logger.CtxError(ctx, "Reconciling dead item %s failed: %v", item.ItemID, err)
			failed = append(failed, msg.ID)
		}
	}
	return failed
}

func (r *Reconciler) reconcile(ctx context.Context, item domain.WorkItem) error {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:  item.JobID,
		logger.FieldItemID: item.ItemID,
	})

	rec, err := r.store.MarkItemFailed(ctx, item.JobID, domain.ItemError{
		ItemID:  item.ItemID,
		Date:    item.Date,
		Message: "delivery attempts exhausted",
	})
	if errors.Is(err, store.ErrConditionFailed) {
		// Counted by a worker after all; nothing left to reconcile.
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		logger.CtxWarn(ctx, "Dead item references an expired or unknown job")
		return nil
	}
	if err != nil {
		return err
	}

	logger.CtxInfo(ctx, "Dead-lettered item recorded as failed")
	if rec.Done() && !rec.Status.Terminal() {
		return r.store.SetTerminal(ctx, rec.JobID, rec.TerminalStatus())
	}
	return nil
}
