package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pawel/toolgate/internal/cache"
	"github.com/pawel/toolgate/internal/domain"
	"github.com/pawel/toolgate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory Cache that ignores TTLs.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.data[key]
	return val, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		failed    int
		total     int
		want      int
	}{
		{"empty job", 0, 0, 0, 0},
		{"nothing done", 0, 0, 10, 0},
		{"half done", 5, 0, 10, 50},
		{"failures count toward progress", 3, 2, 10, 50},
		{"rounds to nearest", 1, 0, 3, 33},
		{"rounds up", 2, 0, 3, 67},
		{"complete", 7, 3, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Progress(tt.processed, tt.failed, tt.total))
		})
	}
}

func TestStatusReader_Get_NotFound(t *testing.T) {
	reader := NewStatusReader(store.NewMemory(), cache.Noop{}, time.Second)

	_, err := reader.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusReader_Get_Snapshot(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 4)
	_, err := st.MarkItemDone(context.Background(), rec.JobID, "AB-1#1/Jan/26")
	require.NoError(t, err)
	_, err = st.MarkItemFailed(context.Background(), rec.JobID, domain.ItemError{
		ItemID:  "AB-2#1/Jan/26",
		Date:    "1/Jan/26",
		Message: "boom",
	})
	require.NoError(t, err)

	reader := NewStatusReader(st, cache.Noop{}, time.Second)
	snap, err := reader.Get(context.Background(), rec.JobID)
	require.NoError(t, err)

	assert.Equal(t, rec.JobID, snap.JobID)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 1, snap.Processed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, domain.StatusInProgress, snap.Status)
	assert.Equal(t, 50, snap.Progress)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "boom", snap.Errors[0].Message)
}

func TestStatusReader_Get_ErrorsNeverNull(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 1)

	reader := NewStatusReader(st, cache.Noop{}, time.Second)
	snap, err := reader.Get(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.NotNil(t, snap.Errors)
	assert.Empty(t, snap.Errors)
}

func TestStatusReader_Get_ReadThroughCache(t *testing.T) {
	st := store.NewMemory()
	rec := seedJob(t, st, 2)

	ca := newMapCache()
	reader := NewStatusReader(st, ca, time.Second)

	first, err := reader.Get(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, ca.sets, "miss populates the cache")

	// Mutate the record; the cached snapshot keeps serving until the TTL
	// would expire.
	_, err = st.MarkItemDone(context.Background(), rec.JobID, "AB-1#1/Jan/26")
	require.NoError(t, err)

	second, err := reader.Get(context.Background(), rec.JobID)
	require.NoError(t, err)
	assert.Equal(t, first.Processed, second.Processed)
	assert.Equal(t, 1, ca.sets, "hit does not rewrite the cache")
}
