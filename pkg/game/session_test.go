package game

import (
	"context"
	"testing"
	"time"

	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/reachability"
	"skatesync/pkg/server"
	"skatesync/pkg/store"
	gamesync "skatesync/pkg/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopGameService satisfies the remote boundary for session tests that
// never go online.
type noopGameService struct{}

func (noopGameService) ResolveRound(_ context.Context, _ *server.ResolveRoundRequest) error {
	return nil
}

func (noopGameService) FetchGameState(_ context.Context, gameID int64) (*server.GameState, error) {
	return &server.GameState{GameID: gameID}, nil
}

func (noopGameService) UpdateLetters(_ context.Context, _ int64, _ string, _ int) error {
	return nil
}

func (noopGameService) UpdateStatusMessage(_ context.Context, _ int64, _ string) error {
	return nil
}

func (noopGameService) PauseGame(_ context.Context, _ int64) error    { return nil }
func (noopGameService) ResumeGame(_ context.Context, _ int64) error   { return nil }
func (noopGameService) CancelGame(_ context.Context, _ int64) error   { return nil }
func (noopGameService) CompleteGame(_ context.Context, _ int64) error { return nil }

func newTestSession(t *testing.T, snapshot *gametypes.GameSnapshot) (*Session, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	require.NoError(t, memStore.Open(context.Background()))
	monitor := reachability.NewManualMonitor(false)
	engine := gamesync.NewEngine(gamesync.NewEngineOptions{
		Store:       memStore,
		GameService: noopGameService{},
		Monitor:     monitor,
	})
	session := NewSession(NewSessionOptions{
		Engine:     engine,
		Monitor:    monitor,
		DeviceID:   "device-1",
		Snapshot:   snapshot,
		GuardDelay: time.Second,
	})
	return session, memStore
}

func sessionSnapshot() *gametypes.GameSnapshot {
	return &gametypes.GameSnapshot{
		GameID:     1,
		P1Username: "alice",
		P1UserID:   10,
		P2Username: "bob",
		P2UserID:   20,
		WhosSet:    "alice",
	}
}

func TestSession_CallTrick(t *testing.T) {
	ctx := context.Background()
	session, _ := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	assert.Equal(t, "kickflip", session.CalledTrick())
	assert.Equal(t, gametypes.GameStatusPlaying, session.Status())

	t.Run("only the setter can call", func(t *testing.T) {
		err := session.CallTrick(ctx, "bob", "heelflip")
		assert.Error(t, err)
	})
}

func TestSession_SubmitOutcome_requiresCalledTrick(t *testing.T) {
	ctx := context.Background()
	session, _ := newTestSession(t, sessionSnapshot())

	err := session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded)
	assert.Error(t, err)
}

func TestSession_SubmitOutcome_rejectsUndecided(t *testing.T) {
	ctx := context.Background()
	session, _ := newTestSession(t, sessionSnapshot())

	err := session.SubmitOutcome(ctx, "alice", gametypes.OutcomeUndecided)
	assert.Error(t, err)
}

func TestSession_bothLandSetterKeepsSet(t *testing.T) {
	ctx := context.Background()
	session, memStore := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeLanded))

	snapshot := session.Snapshot()
	assert.Equal(t, 0, snapshot.P1Letters)
	assert.Equal(t, 0, snapshot.P2Letters)
	assert.Equal(t, "alice", snapshot.WhosSet)
	assert.Equal(t, gametypes.NoTrickCalled, snapshot.CalledTrick)
	assert.Equal(t, 1, session.RoundNumber())

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "kickflip", unsynced[0].Trick)
	assert.Equal(t, gametypes.OutcomeLanded, unsynced[0].SetterOutcome)
	assert.Equal(t, gametypes.OutcomeLanded, unsynced[0].ReceiverOutcome)
	assert.Empty(t, unsynced[0].LetterTo)
}

func TestSession_receiverFallsGainsLetter(t *testing.T) {
	ctx := context.Background()
	session, memStore := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))

	snapshot := session.Snapshot()
	assert.Equal(t, 1, snapshot.P2Letters)
	assert.Equal(t, "alice", snapshot.WhosSet)

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "bob", unsynced[0].LetterTo)
}

func TestSession_firstInputWinsPerPlayer(t *testing.T) {
	ctx := context.Background()
	session, memStore := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))
	// A repeat submission before resolution is ignored, not an error.
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))

	snapshot := session.Snapshot()
	assert.Equal(t, 1, snapshot.P2Letters)

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, gametypes.OutcomeFell, unsynced[0].ReceiverOutcome)
}

func TestSession_lastTryInsteadOfFinalLetter(t *testing.T) {
	ctx := context.Background()
	snapshot := sessionSnapshot()
	snapshot.P2Letters = gametypes.MaxLetters - 1
	session, memStore := newTestSession(t, snapshot)

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))

	// No letter yet and no completed round; the game waits on bob.
	assert.Equal(t, "bob", session.LastTryPlayer())
	current := session.Snapshot()
	assert.Equal(t, gametypes.MaxLetters-1, current.P2Letters)
	assert.Equal(t, "kickflip", current.CalledTrick)
	assert.Equal(t, 0, session.RoundNumber())

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	t.Run("other inputs are rejected while waiting", func(t *testing.T) {
		err := session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded)
		assert.Error(t, err)
		err = session.CallTrick(ctx, "alice", "heelflip")
		assert.Error(t, err)
	})
}

func TestSession_lastTrySurvival(t *testing.T) {
	ctx := context.Background()
	snapshot := sessionSnapshot()
	snapshot.P2Letters = gametypes.MaxLetters - 1
	session, memStore := newTestSession(t, snapshot)

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeLanded))

	assert.Empty(t, session.LastTryPlayer())
	current := session.Snapshot()
	assert.Equal(t, gametypes.MaxLetters-1, current.P2Letters)
	assert.Equal(t, "alice", current.WhosSet)
	assert.NotEqual(t, gametypes.GameStatusGameOver, session.Status())

	// The completed round records the original outcome pair with no
	// letter assigned.
	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, gametypes.OutcomeLanded, unsynced[0].SetterOutcome)
	assert.Equal(t, gametypes.OutcomeFell, unsynced[0].ReceiverOutcome)
	assert.Empty(t, unsynced[0].LetterTo)
}

func TestSession_lastTryElimination(t *testing.T) {
	ctx := context.Background()
	snapshot := sessionSnapshot()
	snapshot.P2Letters = gametypes.MaxLetters - 1
	session, memStore := newTestSession(t, snapshot)

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))

	assert.Equal(t, gametypes.GameStatusGameOver, session.Status())
	assert.Equal(t, "alice", session.Winner())
	current := session.Snapshot()
	assert.Equal(t, gametypes.MaxLetters, current.P2Letters)

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "bob", unsynced[0].LetterTo)

	t.Run("no inputs after game over", func(t *testing.T) {
		assert.Error(t, session.CallTrick(ctx, "alice", "heelflip"))
		assert.Error(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	})
}

func TestSession_lettersNeverExceedMax(t *testing.T) {
	ctx := context.Background()
	snapshot := sessionSnapshot()
	snapshot.P2Letters = gametypes.MaxLetters - 1
	session, _ := newTestSession(t, snapshot)

	require.NoError(t, session.CallTrick(ctx, "alice", "kickflip"))
	require.NoError(t, session.SubmitOutcome(ctx, "alice", gametypes.OutcomeLanded))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))
	require.NoError(t, session.SubmitOutcome(ctx, "bob", gametypes.OutcomeFell))

	assert.Equal(t, gametypes.MaxLetters, session.Snapshot().P2Letters)
}

func TestSession_GiveLetter(t *testing.T) {
	ctx := context.Background()
	session, memStore := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.GiveLetter(ctx, "bob"))

	snapshot := session.Snapshot()
	assert.Equal(t, 1, snapshot.P2Letters)
	assert.Equal(t, "alice", snapshot.WhosSet)

	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "bob", unsynced[0].LetterTo)
	assert.Equal(t, gametypes.OutcomeLanded, unsynced[0].SetterOutcome)
	assert.Equal(t, gametypes.OutcomeFell, unsynced[0].ReceiverOutcome)
}

func TestSession_GiveLetter_toSetterPassesSet(t *testing.T) {
	ctx := context.Background()
	session, _ := newTestSession(t, sessionSnapshot())

	require.NoError(t, session.GiveLetter(ctx, "alice"))

	snapshot := session.Snapshot()
	assert.Equal(t, 1, snapshot.P1Letters)
	assert.Equal(t, "bob", snapshot.WhosSet)
}

func TestSession_GiveLetter_unknownPlayer(t *testing.T) {
	ctx := context.Background()
	session, _ := newTestSession(t, sessionSnapshot())

	assert.Error(t, session.GiveLetter(ctx, "carol"))
}

func TestSession_duplicateResolutionAbsorbed(t *testing.T) {
	ctx := context.Background()
	session, memStore := newTestSession(t, sessionSnapshot())

	// Two identical letter grants inside the guard window resolve once.
	require.NoError(t, session.GiveLetter(ctx, "bob"))
	require.NoError(t, session.GiveLetter(ctx, "bob"))

	assert.Equal(t, 1, session.Snapshot().P2Letters)
	unsynced, err := memStore.GetUnsyncedActions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)
}
