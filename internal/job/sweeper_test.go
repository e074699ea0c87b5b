package job

import (
	"context"
	"testing"
	"time"

	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ForceFailsUnderCountedStaleJobs(t *testing.T) {
	st := store.NewMemory()
	stale := seedJob(t, st, 3)

	time.Sleep(10 * time.Millisecond)

	// Zero staleness: anything not touched during this sweep is stale.
	sw := NewSweeper(st, 0, time.Minute)
	sw.sweep(context.Background())

	got, err := st.GetJob(context.Background(), stale.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status, "under-counted jobs can never finish on their own")
}

func TestSweeper_StaleButFullyCountedJobKeepsDerivedStatus(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 1)
	_, err := st.MarkItemDone(context.Background(), rec.JobID, "AB-1#1/Jan/26#0")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// The worker died between the last increment and the terminal write:
	// counters cover the total, so the sweep must finish the job with the
	// status its counters derive, not brand it failed.
	sw := NewSweeper(st, 0, time.Minute)
	sw.sweep(context.Background())

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestSweeper_StaleJobWithFailuresEndsFailed(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 2)
	_, err := st.MarkItemDone(context.Background(), rec.JobID, "AB-1#1/Jan/26#0")
	require.NoError(t, err)
	_, err = st.MarkItemFailed(context.Background(), rec.JobID, domain.ItemError{
		ItemID:  "AB-1#1/Jan/26#1",
		Date:    "1/Jan/26",
		Message: "boom",
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	sw := NewSweeper(st, 0, time.Minute)
	sw.sweep(context.Background())

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestSweeper_SkipsRecentJobs(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 2)

	sw := NewSweeper(st, time.Hour, time.Minute)
	sw.sweep(context.Background())

	got, err := st.GetJob(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}
