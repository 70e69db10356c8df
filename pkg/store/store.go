package store

import (
	"context"
	"time"

	gametypes "skatesync/pkg/game/types"
)

// Store is the local durable store for game snapshots, round actions and
// the generic pending-action queue. Pure storage; no business logic.
//
// All operations return ErrNotReady until Open has completed. Write
// failures are surfaced to the caller, which owns retry/backoff.
type Store interface {
	// Open initializes the schema. Operations before Open complete with
	// ErrNotReady.
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// SaveGameState upserts a snapshot keyed by game ID. Idempotent,
	// last-write-wins on all fields.
	SaveGameState(ctx context.Context, snapshot *gametypes.GameSnapshot) error
	// GetGameState returns the snapshot for a game or ErrNotFound.
	GetGameState(ctx context.Context, gameID int64) (*gametypes.GameSnapshot, error)

	// QueueRoundAction appends an immutable round action and returns its
	// locally-unique ID. An empty action ID is assigned one.
	QueueRoundAction(ctx context.Context, action *gametypes.RoundAction) (string, error)
	// GetUnsyncedActions returns all unsynced round actions for a game,
	// oldest first. Delivery order matters for server-side round
	// sequencing.
	GetUnsyncedActions(ctx context.Context, gameID int64) ([]*gametypes.RoundAction, error)
	// MarkActionSynced flips the synced flag. One-way, never reversed.
	MarkActionSynced(ctx context.Context, actionID string) error

	QueuePendingAction(ctx context.Context, action *gametypes.PendingAction) (string, error)
	GetPendingActions(ctx context.Context, gameID int64) ([]*gametypes.PendingAction, error)
	DeletePendingAction(ctx context.Context, actionID string) error
	IncrementPendingAttempts(ctx context.Context, actionID string) error

	// ClearGameData deletes all rows for a game in a single transaction.
	// Used only on terminal game states.
	ClearGameData(ctx context.Context, gameID int64) error

	// UpdateUsernameInGameStates rewrites every snapshot field referencing
	// the old username.
	UpdateUsernameInGameStates(ctx context.Context, oldName, newName string) error
	// UpdateUsernameInActions rewrites setter, receiver, letter-recipient
	// and author references in every historical round action.
	UpdateUsernameInActions(ctx context.Context, oldName, newName string) error

	// ListGamesWithUnsynced returns the IDs of games that have unsynced
	// round actions or queued pending actions.
	ListGamesWithUnsynced(ctx context.Context) ([]int64, error)

	// AppendSyncLog records one sync pass in the audit trail.
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
}

// SyncLogEntry is one row of the sync audit trail.
type SyncLogEntry struct {
	GameID      int64
	StartedAt   time.Time
	CompletedAt time.Time
	SyncedCount int
	Conflicts   int
	Detail      string
}
