package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/store"
	"github.com/pawel/toolgate/internal/worklog"
)

// Processor handles batches of work items from the queue. Items are
// processed independently: one item's failure never aborts its siblings,
// and every record mutation goes through the store's atomic primitives.
type Processor struct {
	store     store.RecordStore
	worklog   *worklog.Client
	itemDelay time.Duration
}

func NewProcessor(st store.RecordStore, client *worklog.Client, itemDelay time.Duration) *Processor {
	return &Processor{
		store:     st,
		worklog:   client,
		itemDelay: itemDelay,
	}
}

// HandleBatch is the queue handler. The returned IDs are redelivered;
// everything else is settled. A store error while recording an item's
// failure surfaces as a batch-item failure so the queue's delivery-count
// mechanism governs it.
func (p *Processor) HandleBatch(ctx context.Context, batch []queue.Message) []string {
	var failed []string
	for i, msg := range batch {
		if i > 0 && p.itemDelay > 0 {
			// Fixed inter-item delay to respect upstream rate limits.
			select {
			case <-ctx.Done():
				for _, rest := range batch[i:] {
					failed = append(failed, rest.ID)
				}
				return failed
			case <-time.After(p.itemDelay):
			}
		}

		var item domain.WorkItem
		if err := json.Unmarshal(msg.Body, &item); err != nil {
			// Poison message: it will never parse, so do not redeliver.
			logger.CtxError(ctx, "Dropping unparseable work item message %s: %v", msg.ID, err)
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			logger.CtxError(ctx, "Work item %s failed to settle (attempt %d): %v", item.ItemID, msg.Attempts, err)
			failed = append(failed, msg.ID)
		}
	}
	return failed
}

// processItem performs the upstream call for one item and records the
// outcome. The returned error means the outcome could NOT be recorded;
// an upstream rejection that was recorded as a failure returns nil.
func (p *Processor) processItem(ctx context.Context, item domain.WorkItem) error {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:  item.JobID,
		logger.FieldItemID: item.ItemID,
	})

	var rec *domain.JobRecord
	var err error

	upstreamErr := p.worklog.Submit(ctx, item.Token, worklog.Entry{
		Username:    item.Username,
		Instance:    item.Instance,
		TicketID:    item.TicketID,
		Date:        item.Date,
		TimeSpend:   item.TimeSpend,
		Description: item.Description,
		TypeOfWork:  item.TypeOfWork,
	})
	if upstreamErr == nil {
		rec, err = p.store.MarkItemDone(ctx, item.JobID, item.ItemID)
	} else {
		logger.CtxWarn(ctx, "Upstream call failed: %v", upstreamErr)
		rec, err = p.store.MarkItemFailed(ctx, item.JobID, domain.ItemError{
			ItemID:  item.ItemID,
			Date:    item.Date,
			Message: upstreamErr.Error(),
		})
	}

	switch {
	case errors.Is(err, store.ErrConditionFailed):
		// Redelivered item that was already counted. Re-read so the
		// terminal check still runs.
		logger.CtxInfo(ctx, "Duplicate delivery, item already counted")
		rec, err = p.store.GetJob(ctx, item.JobID)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	}

	return p.finishIfDone(ctx, rec)
}

// finishIfDone issues the idempotent terminal transition once every item
// is accounted for. Two workers may race here; the conditional write
// makes the second one a no-op.
func (p *Processor) finishIfDone(ctx context.Context, rec *domain.JobRecord) error {
	if !rec.Done() || rec.Status.Terminal() {
		return nil
	}
	status := rec.TerminalStatus()
	if err := p.store.SetTerminal(ctx, rec.JobID, status); err != nil {
		return err
	}
	logger.CtxInfo(ctx, "Job finished: status=%s, processed=%d, failed=%d, total=%d",
		status, rec.Processed, rec.Failed, rec.Total)
	return nil
}
