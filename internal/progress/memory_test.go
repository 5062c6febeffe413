package progress

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute, 10)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, State{TaskID: "a", Status: StatusProcessing}))

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Expired entries are purged on the next insert.
	require.NoError(t, store.Put(ctx, State{TaskID: "b", Status: StatusProcessing}))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_CapEvictsOldest(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour, 3)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		now = now.Add(time.Second)
		require.NoError(t, store.Put(ctx, State{TaskID: fmt.Sprintf("t%d", i), Status: StatusProcessing}))
	}

	assert.Equal(t, 3, store.Len())
	_, ok, _ := store.Get(ctx, "t0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = store.Get(ctx, "t3")
	assert.True(t, ok)
}

func TestMemoryStore_UpdateDoesNotEvict(t *testing.T) {
	store := NewMemoryStore(time.Hour, 2)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, State{TaskID: "a"}))
	require.NoError(t, store.Put(ctx, State{TaskID: "b"}))
	require.NoError(t, store.Put(ctx, State{TaskID: "a", Progress: 50}))

	assert.Equal(t, 2, store.Len())
	state, ok, _ := store.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 50, state.Progress)
}
