package storage_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/koopa0/pong-arena/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	ok, err := store.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must fail")

	require.NoError(t, store.Release(ctx, "AB12CD"))
	require.NoError(t, store.Release(ctx, "AB12CD"), "release is idempotent")

	ok, err = store.Reserve(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Reserve(ctx, "SAME01"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	for i := 0; i < 10; i++ {
		ok, err := store.Reserve(ctx, fmt.Sprintf("CODE%02d", i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 11, store.Len())
}
