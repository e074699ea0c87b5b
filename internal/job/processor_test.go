package job

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/queue"
	"github.com/pawel/toolgate/internal/store"
	"github.com/pawel/toolgate/internal/worklog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorklogClient(t *testing.T, upstream http.HandlerFunc) *worklog.Client {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	return worklog.NewClient(&config.JiraConfig{
		Instances: map[string]config.JiraInstanceConfig{
			"jiradc": {URL: srv.URL},
		},
		Timeout: 5 * time.Second,
	})
}

func seedJob(t *testing.T, st store.RecordStore, total int) *domain.JobRecord {
	t.Helper()
	rec := domain.NewJobRecord(total, time.Hour)
	require.NoError(t, st.CreateJob(context.Background(), rec))
	return rec
}

func workItemMessage(t *testing.T, msgID string, item domain.WorkItem) queue.Message {
	t.Helper()
	body, err := json.Marshal(item)
	require.NoError(t, err)
	return queue.Message{ID: msgID, Body: body, Attempts: 1}
}

func testItem(jobID, ticketID, date string) domain.WorkItem {
	return domain.WorkItem{
		JobID:       jobID,
		ItemID:      domain.ItemID(ticketID, date, 0),
		Username:    "alice",
		Token:       "token",
		Instance:    "jiradc",
		TicketID:    ticketID,
		Date:        date,
		TimeSpend:   "1",
		Description: "work",
		TypeOfWork:  "Dev",
	}
}

func TestProcessor_HandleBatch_AllSucceedCompletesJob(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)
	rec := seedJob(t, st, 2)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		workItemMessage(t, "m1", testItem(rec.JobID, "AB-1", "1/Jan/26")),
		workItemMessage(t, "m2", testItem(rec.JobID, "AB-2", "1/Jan/26")),
	})
	assert.Empty(t, failed)

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, 0, got.Failed)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestProcessor_HandleBatch_UpstreamRejectionIsRecordedNotRedelivered(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"issue does not exist"}`, http.StatusBadRequest)
	})
	proc := NewProcessor(st, client, 0)
	rec := seedJob(t, st, 1)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		workItemMessage(t, "m1", testItem(rec.JobID, "AB-1", "1/Jan/26")),
	})
	assert.Empty(t, failed, "a recorded upstream failure is settled, not redelivered")

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Processed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, domain.ItemID("AB-1", "1/Jan/26", 0), got.Errors[0].ItemID)
	assert.Equal(t, "1/Jan/26", got.Errors[0].Date)
	assert.Contains(t, got.Errors[0].Message, "issue does not exist")
}

func TestProcessor_HandleBatch_MixedOutcomes(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			IssueKey string `json:"issueKey"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload.IssueKey == "BAD-1" {
			http.Error(w, "no such issue", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)
	rec := seedJob(t, st, 2)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		workItemMessage(t, "m1", testItem(rec.JobID, "AB-1", "1/Jan/26")),
		workItemMessage(t, "m2", testItem(rec.JobID, "BAD-1", "1/Jan/26")),
	})
	assert.Empty(t, failed)

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Processed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, domain.StatusFailed, got.Status, "any failed item makes the terminal status failed")
}

func TestProcessor_HandleBatch_DuplicateDeliveryCountsOnce(t *testing.T) {
	var calls atomic.Int32
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)
	rec := seedJob(t, st, 2)

	msg := workItemMessage(t, "m1", testItem(rec.JobID, "AB-1", "1/Jan/26"))

	failed := proc.HandleBatch(context.Background(), []queue.Message{msg})
	assert.Empty(t, failed)

	// Redelivery of the same item: upstream is called again (at-least-once)
	// but the counter moves only once.
	failed = proc.HandleBatch(context.Background(), []queue.Message{msg})
	assert.Empty(t, failed)

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Processed)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessor_HandleBatch_RepeatedPairCountsEveryMessage(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)
	rec := seedJob(t, st, 2)

	// A request may legally repeat a date or ticket; the two expanded
	// items share (ticket, date) but carry distinct dedup keys, so both
	// count and the job converges to a terminal state.
	first := testItem(rec.JobID, "AB-1", "1/Jan/26")
	second := testItem(rec.JobID, "AB-1", "1/Jan/26")
	second.ItemID = domain.ItemID("AB-1", "1/Jan/26", 1)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		workItemMessage(t, "m1", first),
		workItemMessage(t, "m2", second),
	})
	assert.Empty(t, failed)

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Processed, "both successful upstream calls are counted")
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestProcessor_HandleBatch_UnknownJobRedelivered(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		workItemMessage(t, "m1", testItem("no-such-job", "AB-1", "1/Jan/26")),
	})
	assert.Equal(t, []string{"m1"}, failed, "unrecordable outcome goes back to the queue")
}

func TestProcessor_HandleBatch_DropsPoisonMessage(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 0)

	failed := proc.HandleBatch(context.Background(), []queue.Message{
		{ID: "m1", Body: []byte("not json"), Attempts: 1},
	})
	assert.Empty(t, failed, "unparseable messages are dropped, not redelivered forever")
}

func TestProcessor_HandleBatch_CancelFailsRemainingItems(t *testing.T) {
	st := store.NewMemory()
	client := newTestWorklogClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	proc := NewProcessor(st, client, 50*time.Millisecond)
	rec := seedJob(t, st, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failed := proc.HandleBatch(ctx, []queue.Message{
		workItemMessage(t, "m1", testItem(rec.JobID, "AB-1", "1/Jan/26")),
		workItemMessage(t, "m2", testItem(rec.JobID, "AB-2", "1/Jan/26")),
		workItemMessage(t, "m3", testItem(rec.JobID, "AB-3", "1/Jan/26")),
	})
	assert.Equal(t, []string{"m1", "m2", "m3"}, failed, "nothing settles once the context is cancelled")
}
