package sync

import (
	"context"
	"testing"
	"time"

	"skatesync/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncedSaver_coalescesBurst(t *testing.T) {
	ctx := context.Background()
	memStore := store.NewMemoryStore()
	require.NoError(t, memStore.Open(ctx))
	saver := newDebouncedSaver(memStore, 20*time.Millisecond)

	for letters := 1; letters <= 5; letters++ {
		snapshot := testSnapshot()
		snapshot.P2Letters = letters
		saver.save(snapshot)
	}

	// Nothing written inside the debounce window.
	_, err := memStore.GetGameState(ctx, 1)
	assert.True(t, store.IsNotFound(err))

	assert.Eventually(t, func() bool {
		snapshot, err := memStore.GetGameState(ctx, 1)
		return err == nil && snapshot.P2Letters == 5
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncedSaver_flushAll(t *testing.T) {
	ctx := context.Background()
	memStore := store.NewMemoryStore()
	require.NoError(t, memStore.Open(ctx))
	saver := newDebouncedSaver(memStore, time.Hour)

	saver.save(testSnapshot())
	other := testSnapshot()
	other.GameID = 2
	saver.save(other)

	saver.flushAll()

	_, err := memStore.GetGameState(ctx, 1)
	assert.NoError(t, err)
	_, err = memStore.GetGameState(ctx, 2)
	assert.NoError(t, err)
}

func TestDebouncedSaver_perGameTimers(t *testing.T) {
	ctx := context.Background()
	memStore := store.NewMemoryStore()
	require.NoError(t, memStore.Open(ctx))
	saver := newDebouncedSaver(memStore, 10*time.Millisecond)

	saver.save(testSnapshot())
	other := testSnapshot()
	other.GameID = 2
	saver.save(other)

	assert.Eventually(t, func() bool {
		_, err1 := memStore.GetGameState(ctx, 1)
		_, err2 := memStore.GetGameState(ctx, 2)
		return err1 == nil && err2 == nil
	}, time.Second, 5*time.Millisecond)
}
