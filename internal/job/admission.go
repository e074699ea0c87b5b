package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/logger"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/store"
)

// SubmitResult is what the caller gets back from admission: enough to
// poll the status endpoint, nothing about item outcomes.
type SubmitResult struct {
	JobID string
	Total int
}

// Admission validates a bulk request, expands it into independent work
// items, writes the initial job record and enqueues every item. It never
// mutates the record afterward and never waits for item completion.
type Admission struct {
	store     store.RecordStore
	producer  queue.Producer
	instances []string
	retention time.Duration
	workers   int
}

func NewAdmission(st store.RecordStore, producer queue.Producer, jiraCfg *config.JiraConfig, jobsCfg *config.JobsConfig) *Admission {
	workers := jobsCfg.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Admission{
		store:     st,
		producer:  producer,
		instances: jiraCfg.InstanceNames(),
		retention: jobsCfg.Retention,
		workers:   workers,
	}
}

// Submit runs the admission flow: validate, expand dates × tickets into
// work items, create the record, then dispatch all items in parallel.
// Enqueue failures are logged but not rolled back; the sweeper later
// force-closes jobs that can never finish.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - token: bearer credential, already stripped of its prefix.
//   - req: parsed bulk request; nil means the body was missing or unparseable.
// Returns:
//   - *SubmitResult: job ID and total item count.
//   - error: *ValidationError for client input errors.
func (a *Admission) Submit(ctx context.Context, token string, req *SubmitRequest) (*SubmitResult, error) {
	dates, err := a.validate(token, req)
	if err != nil {
		return nil, err
	}

	rec := domain.NewJobRecord(len(dates)*len(req.Tickets), a.retention)
	if err := a.store.CreateJob(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating job record: %w", err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{logger.FieldJobID: rec.JobID})
	logger.CtxInfo(ctx, "Job admitted: total=%d, dates=%d, tickets=%d, instance=%s",
		rec.Total, len(dates), len(req.Tickets), req.JiraInstance)

	a.dispatch(ctx, rec.JobID, token, req, dates)

	return &SubmitResult{JobID: rec.JobID, Total: rec.Total}, nil
}

// validate applies the admission checks in their contract order and
// returns the parsed date tokens.
func (a *Admission) validate(token string, req *SubmitRequest) ([]string, error) {
	if req == nil {
		return nil, validationErrorf("Missing or invalid request body")
	}
	if strings.TrimSpace(token) == "" {
		return nil, validationErrorf("Missing or invalid Authorization header: must provide a Bearer token")
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, validationErrorf("Missing or invalid username")
	}
	dates := req.DateList()
	if len(dates) == 0 {
		return nil, validationErrorf("Missing or invalid dates: must provide a comma-separated list of dates")
	}
	if !contains(a.instances, req.JiraInstance) {
		return nil, validationErrorf("Missing or invalid jiraInstance: must be one of %s", strings.Join(a.instances, ", "))
	}
	if len(req.Tickets) == 0 {
		return nil, validationErrorf("Missing or invalid tickets: must provide a tickets array")
	}
	for _, t := range req.Tickets {
		if t.TicketID == "" || t.TimeSpend == "" || t.Description == "" || t.TypeOfWork == "" {
			// One aggregate error for the whole set, not per item.
			return nil, validationErrorf("Missing or invalid tickets: every ticket requires ticketId, timeSpend, description and typeOfWork")
		}
	}
	return dates, nil
}

// dispatch enqueues one message per (date, ticket) pair through a small
// worker pool and waits for every send to settle.
func (a *Admission) dispatch(ctx context.Context, jobID, token string, req *SubmitRequest, dates []string) {
	items := make(chan domain.WorkItem, a.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				body, err := json.Marshal(item)
				if err != nil {
					logger.CtxError(ctx, "Marshal failed for item %s: %v", item.ItemID, err)
					continue
				}
				if err := a.producer.Send(ctx, body); err != nil {
					// Not rolled back: the record keeps the full total and
					// the stale-job sweeper closes the gap.
					logger.CtxError(ctx, "Enqueue failed for item %s: %v", item.ItemID, err)
				}
			}
		}()
	}

	seq := 0
	for _, date := range dates {
		for _, ticket := range req.Tickets {
			items <- domain.WorkItem{
				JobID:       jobID,
				ItemID:      domain.ItemID(ticket.TicketID, date, seq),
				Username:    req.Username,
				Token:       token,
				Instance:    req.JiraInstance,
				TicketID:    ticket.TicketID,
				Date:        date,
				TimeSpend:   ticket.TimeSpend,
				Description: ticket.Description,
				TypeOfWork:  ticket.TypeOfWork,
			}
			seq++
		}
	}
	close(items)
	wg.Wait()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
