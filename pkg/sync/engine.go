// Package sync keeps the local durable store and the remote game service
// converged under intermittent connectivity. Round actions are delivered
// at-most-once from the local queue in creation order; server state wins
// every conflict over already-recorded turns.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/reachability"
	"skatesync/pkg/server"
	"skatesync/pkg/store"
)

const (
	DefaultSyncInterval   = 30 * time.Second
	DefaultReconnectDelay = 2 * time.Second
	DefaultSaveDebounce   = 500 * time.Millisecond

	noticeBufferSize = 16
)

// SyncResult is the aggregated outcome of one sync pass. Success false
// with no error means "try later" (offline, or a pass already in
// flight); it is not a failure.
type SyncResult struct {
	Success     bool
	SyncedCount int
	Conflicts   []ConflictInfo
}

// Notice is a user-facing message produced by the engine (offline
// indicator, conflict notices). Presentation decides how to render it.
type Notice struct {
	GameID  int64
	Message string
}

// Engine is the game sync engine. One instance per process; the
// single-flight guard below is engine-wide, not per-game. That is a
// scaling limit for many concurrently active games, acceptable while
// typical usage is one active game at a time.
type Engine struct {
	store          store.Store
	gameService    server.GameService
	monitor        reachability.Monitor
	syncInterval   time.Duration
	reconnectDelay time.Duration

	syncMutex sync.Mutex
	syncing   bool
	flushing  bool

	notices chan Notice

	saver *debouncedSaver
}

type NewEngineOptions struct {
	Store       store.Store
	GameService server.GameService
	Monitor     reachability.Monitor
	// SyncInterval is the background loop period. Zero means
	// DefaultSyncInterval.
	SyncInterval time.Duration
	// ReconnectDelay is how long to wait after an offline-to-online
	// transition before syncing, to let the transport stabilize. Zero
	// means DefaultReconnectDelay.
	ReconnectDelay time.Duration
	// SaveDebounce coalesces rapid snapshot saves. Zero means
	// DefaultSaveDebounce.
	SaveDebounce time.Duration
}

func NewEngine(opts NewEngineOptions) *Engine {
	syncInterval := opts.SyncInterval
	if syncInterval == 0 {
		syncInterval = DefaultSyncInterval
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay == 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	saveDebounce := opts.SaveDebounce
	if saveDebounce == 0 {
		saveDebounce = DefaultSaveDebounce
	}

	return &Engine{
		store:          opts.Store,
		gameService:    opts.GameService,
		monitor:        opts.Monitor,
		syncInterval:   syncInterval,
		reconnectDelay: reconnectDelay,
		notices:        make(chan Notice, noticeBufferSize),
		saver:          newDebouncedSaver(opts.Store, saveDebounce),
	}
}

// Notices returns the stream of user-facing notices. The channel is
// buffered; notices are dropped when nobody is listening.
func (e *Engine) Notices() <-chan Notice {
	return e.notices
}

func (e *Engine) notify(gameID int64, format string, args ...interface{}) {
	notice := Notice{GameID: gameID, Message: fmt.Sprintf(format, args...)}
	select {
	case e.notices <- notice:
	default:
		log.Trace("Dropping notice for game %d: %s", gameID, notice.Message)
	}
}

// SaveActionLocally durably queues a round action, marks the game dirty,
// and, when online, attempts an immediate sync pass as a best-effort
// latency optimization. A failed immediate pass is silent; the action
// stays queued for the next pass.
func (e *Engine) SaveActionLocally(ctx context.Context, action *gametypes.RoundAction) error {
	if _, err := e.store.QueueRoundAction(ctx, action); err != nil {
		return fmt.Errorf("failed to queue round action: %v", err)
	}

	snapshot, err := e.store.GetGameState(ctx, action.GameID)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Error("Failed to load snapshot for game %d: %v", action.GameID, err)
		}
	} else if !snapshot.Dirty {
		snapshot.Dirty = true
		if err := e.store.SaveGameState(ctx, snapshot); err != nil {
			log.Error("Failed to mark game %d dirty: %v", action.GameID, err)
		}
	}

	if e.monitor.IsOnline() {
		if _, err := e.SyncGame(ctx, action.GameID, action.Author); err != nil {
			log.Debug("Immediate sync after save failed for game %d: %v", action.GameID, err)
		}
	}

	return nil
}

// SaveSnapshotDebounced coalesces rapid snapshot saves with a short
// cancel-and-reschedule delay.
func (e *Engine) SaveSnapshotDebounced(snapshot *gametypes.GameSnapshot) {
	e.saver.save(snapshot)
}

// tryBeginSync acquires the engine-wide single-flight flag.
func (e *Engine) tryBeginSync() bool {
	e.syncMutex.Lock()
	defer e.syncMutex.Unlock()
	if e.syncing {
		return false
	}
	e.syncing = true
	return true
}

func (e *Engine) endSync() {
	e.syncMutex.Lock()
	defer e.syncMutex.Unlock()
	e.syncing = false
}

// tryBeginFlush acquires the pending-flush single-flight flag, separate
// from the round sync flag so the two passes do not starve each other.
func (e *Engine) tryBeginFlush() bool {
	e.syncMutex.Lock()
	defer e.syncMutex.Unlock()
	if e.flushing {
		return false
	}
	e.flushing = true
	return true
}

func (e *Engine) endFlush() {
	e.syncMutex.Lock()
	defer e.syncMutex.Unlock()
	e.flushing = false
}

// SyncGame runs one reconciliation pass for a game. Success false with
// nil error means the pass did not run (offline, already in flight, or
// the store is not ready yet) and the caller should try again later.
func (e *Engine) SyncGame(ctx context.Context, gameID int64, actingUsername string) (*SyncResult, error) {
	if !e.tryBeginSync() {
		log.Debug("Sync already in flight, skipping pass for game %d", gameID)
		return &SyncResult{Success: false}, nil
	}
	defer e.endSync()

	if !e.monitor.IsOnline() {
		log.Debug("Offline, skipping sync pass for game %d", gameID)
		return &SyncResult{Success: false}, nil
	}

	if actingUsername != "" {
		log.Debug("Sync pass for game %d triggered by %s", gameID, actingUsername)
	}
	startedAt := time.Now()

	actions, err := e.store.GetUnsyncedActions(ctx, gameID)
	if err != nil {
		if store.IsNotReady(err) {
			log.Debug("Store not ready, skipping sync pass for game %d", gameID)
			return &SyncResult{Success: false}, nil
		}
		return nil, fmt.Errorf("failed to load unsynced actions: %v", err)
	}

	if len(actions) == 0 {
		// Nothing to deliver; still refresh local fields from the
		// server's authoritative state.
		if err := e.refreshSnapshot(ctx, gameID, true); err != nil {
			log.Warn("Failed to refresh snapshot for game %d: %v", gameID, err)
			return &SyncResult{Success: false}, nil
		}
		return &SyncResult{Success: true}, nil
	}

	serverState, err := e.gameService.FetchGameState(ctx, gameID)
	if err != nil {
		log.Warn("Failed to fetch server state for game %d: %v", gameID, err)
		return &SyncResult{Success: false}, nil
	}

	conflicts := detectConflicts(actions, serverState)
	for i := range conflicts {
		conflict := &conflicts[i]
		// Server wins: the local action is discarded as a no-op rather
		// than retried indefinitely.
		log.Warn("Conflict on game %d round %d: local outcome superseded by server",
			gameID, conflict.RoundNumber)
		if err := e.store.MarkActionSynced(ctx, conflict.Local.ID); err != nil {
			log.Error("Failed to mark conflicted action %s synced: %v", conflict.Local.ID, err)
		}
	}

	syncedCount := 0
	failures := 0
	for _, action := range actions {
		if isConflicted(conflicts, action.ID) {
			continue
		}
		if recorded := serverState.TrickForTurn(action.RoundNumber); recorded != nil {
			// Benign duplicate: the server already holds the identical
			// outcome. Treat as delivered.
			if err := e.store.MarkActionSynced(ctx, action.ID); err != nil {
				log.Error("Failed to mark duplicate action %s synced: %v", action.ID, err)
				failures++
				continue
			}
			syncedCount++
			continue
		}

		if err := e.deliverAction(ctx, action); err != nil {
			// Leave it queued and keep going; one failed delivery must
			// not abort the batch.
			log.Warn("Failed to deliver round %d for game %d: %v", action.RoundNumber, gameID, err)
			failures++
			continue
		}
		if err := e.store.MarkActionSynced(ctx, action.ID); err != nil {
			log.Error("Failed to mark action %s synced: %v", action.ID, err)
			failures++
			continue
		}
		syncedCount++
	}

	if err := e.refreshSnapshot(ctx, gameID, failures == 0); err != nil {
		log.Warn("Failed to refresh snapshot after sync for game %d: %v", gameID, err)
	}

	if len(conflicts) > 0 {
		e.notify(gameID, "Game state synced, %d round(s) updated from server", len(conflicts))
	}

	entry := &store.SyncLogEntry{
		GameID:      gameID,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		SyncedCount: syncedCount,
		Conflicts:   len(conflicts),
	}
	if failures > 0 {
		entry.Detail = fmt.Sprintf("%d delivery failure(s), left queued", failures)
	}
	if err := e.store.AppendSyncLog(ctx, entry); err != nil {
		log.Error("Failed to append sync log for game %d: %v", gameID, err)
	}

	return &SyncResult{
		Success:     true,
		SyncedCount: syncedCount,
		Conflicts:   conflicts,
	}, nil
}

// deliverAction pushes one round action to the server. An
// already-resolved response is success.
func (e *Engine) deliverAction(ctx context.Context, action *gametypes.RoundAction) error {
	req := &server.ResolveRoundRequest{
		GameID:           action.GameID,
		RoundNumber:      action.RoundNumber,
		SetterUsername:   action.Setter,
		ReceiverUsername: action.Receiver,
		TrickDetails:     action.Trick,
		SetterLanded:     action.SetterOutcome == gametypes.OutcomeLanded,
		ReceiverLanded:   action.ReceiverOutcome == gametypes.OutcomeLanded,
		LetterAssignTo:   action.LetterTo,
		AuthorUsername:   action.Author,
		ClientTimestamp:  action.CreatedAt,
	}

	if err := e.gameService.ResolveRound(ctx, req); err != nil {
		if server.IsAlreadyResolved(err) {
			log.Debug("Round %d for game %d already resolved server-side", action.RoundNumber, action.GameID)
			return nil
		}
		return err
	}

	return nil
}

// refreshSnapshot overwrites the local snapshot's authoritative fields
// (letters, setter) from the server. clean marks the snapshot as fully
// acknowledged; passes that left actions queued keep it dirty.
func (e *Engine) refreshSnapshot(ctx context.Context, gameID int64, clean bool) error {
	serverState, err := e.gameService.FetchGameState(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to fetch server state: %v", err)
	}

	snapshot, err := e.store.GetGameState(ctx, gameID)
	if err != nil {
		if store.IsNotFound(err) {
			// No local snapshot to refresh; nothing to do.
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %v", err)
	}

	for _, player := range serverState.Players {
		snapshot.SetLettersFor(player.Username, player.FinalLetters)
	}
	if current := serverState.PlayerByID(serverState.CurrentTurnUserID); current != nil {
		snapshot.WhosSet = current.Username
	}
	now := time.Now()
	snapshot.LastSyncedAt = &now
	snapshot.Dirty = !clean

	if err := e.store.SaveGameState(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save refreshed snapshot: %v", err)
	}

	return nil
}
