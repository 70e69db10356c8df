package store

import (
	"context"
	"testing"
	"time"

	gametypes "skatesync/pkg/game/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	require.NoError(t, m.Open(context.Background()))
	t.Cleanup(func() {
		m.Close(context.Background())
	})
	return m
}

func TestMemoryStore_unsyncedActionsOrderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := openMemoryStore(t)

	base := time.Now()
	_, err := m.QueueRoundAction(ctx, storeAction(2, base))
	require.NoError(t, err)
	_, err = m.QueueRoundAction(ctx, storeAction(1, base.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = m.QueueRoundAction(ctx, storeAction(3, base.Add(time.Minute)))
	require.NoError(t, err)

	actions, err := m.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, 1, actions[0].RoundNumber)
	assert.Equal(t, 2, actions[1].RoundNumber)
	assert.Equal(t, 3, actions[2].RoundNumber)
}

func TestMemoryStore_pendingActionsOrderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := openMemoryStore(t)

	base := time.Now()
	queue := func(createdAt time.Time, actionType gametypes.PendingActionType) {
		t.Helper()
		_, err := m.QueuePendingAction(ctx, &gametypes.PendingAction{
			GameID:    1,
			Type:      actionType,
			Payload:   []byte(`{}`),
			CreatedAt: createdAt,
		})
		require.NoError(t, err)
	}
	queue(base, gametypes.PendingActionPauseGame)
	queue(base.Add(-time.Minute), gametypes.PendingActionStatusMessage)

	pending, err := m.GetPendingActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, gametypes.PendingActionStatusMessage, pending[0].Type)
	assert.Equal(t, gametypes.PendingActionPauseGame, pending[1].Type)
}
