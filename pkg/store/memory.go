package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gametypes "skatesync/pkg/game/types"

	"github.com/google/uuid"
)

// MemoryStore implements Store entirely in memory. Nothing survives a
// restart; it backs tests and ephemeral sessions. Must be thread-safe
// like the durable implementations.
type MemoryStore struct {
	ready atomic.Bool

	lock      sync.RWMutex
	snapshots map[int64]*gametypes.GameSnapshot
	actions   []*gametypes.RoundAction
	pending   []*gametypes.PendingAction
	syncLog   []*SyncLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[int64]*gametypes.GameSnapshot),
	}
}

func (m *MemoryStore) Open(_ context.Context) error {
	m.ready.Store(true)
	return nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	m.ready.Store(false)
	return nil
}

func (m *MemoryStore) SaveGameState(_ context.Context, snapshot *gametypes.GameSnapshot) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	copied := *snapshot
	m.snapshots[snapshot.GameID] = &copied
	return nil
}

func (m *MemoryStore) GetGameState(_ context.Context, gameID int64) (*gametypes.GameSnapshot, error) {
	if !m.ready.Load() {
		return nil, &ErrNotReady{}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	snapshot, ok := m.snapshots[gameID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	copied := *snapshot
	return &copied, nil
}

func (m *MemoryStore) QueueRoundAction(_ context.Context, action *gametypes.RoundAction) (string, error) {
	if !m.ready.Load() {
		return "", &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	copied := *action
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.actions = append(m.actions, &copied)
	action.ID = copied.ID
	return copied.ID, nil
}

func (m *MemoryStore) GetUnsyncedActions(_ context.Context, gameID int64) ([]*gametypes.RoundAction, error) {
	if !m.ready.Load() {
		return nil, &ErrNotReady{}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	var unsynced []*gametypes.RoundAction
	for _, action := range m.actions {
		if action.GameID != gameID || action.Synced {
			continue
		}
		copied := *action
		unsynced = append(unsynced, &copied)
	}
	sort.SliceStable(unsynced, func(i, j int) bool {
		return unsynced[i].CreatedAt.Before(unsynced[j].CreatedAt)
	})
	return unsynced, nil
}

func (m *MemoryStore) MarkActionSynced(_ context.Context, actionID string) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, action := range m.actions {
		if action.ID == actionID {
			action.Synced = true
			return nil
		}
	}
	return &ErrNotFound{}
}

func (m *MemoryStore) QueuePendingAction(_ context.Context, action *gametypes.PendingAction) (string, error) {
	if !m.ready.Load() {
		return "", &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	copied := *action
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	m.pending = append(m.pending, &copied)
	action.ID = copied.ID
	return copied.ID, nil
}

func (m *MemoryStore) GetPendingActions(_ context.Context, gameID int64) ([]*gametypes.PendingAction, error) {
	if !m.ready.Load() {
		return nil, &ErrNotReady{}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	var queued []*gametypes.PendingAction
	for _, action := range m.pending {
		if action.GameID != gameID {
			continue
		}
		copied := *action
		queued = append(queued, &copied)
	}
	sort.SliceStable(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued, nil
}

func (m *MemoryStore) DeletePendingAction(_ context.Context, actionID string) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for i, action := range m.pending {
		if action.ID == actionID {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return nil
		}
	}
	return &ErrNotFound{}
}

func (m *MemoryStore) IncrementPendingAttempts(_ context.Context, actionID string) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, action := range m.pending {
		if action.ID == actionID {
			action.Attempts++
			return nil
		}
	}
	return &ErrNotFound{}
}

func (m *MemoryStore) ClearGameData(_ context.Context, gameID int64) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.snapshots, gameID)
	actions := m.actions[:0]
	for _, action := range m.actions {
		if action.GameID != gameID {
			actions = append(actions, action)
		}
	}
	m.actions = actions
	pending := m.pending[:0]
	for _, action := range m.pending {
		if action.GameID != gameID {
			pending = append(pending, action)
		}
	}
	m.pending = pending
	return nil
}

func (m *MemoryStore) UpdateUsernameInGameStates(_ context.Context, oldName, newName string) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, snapshot := range m.snapshots {
		if snapshot.P1Username == oldName {
			snapshot.P1Username = newName
		}
		if snapshot.P2Username == oldName {
			snapshot.P2Username = newName
		}
		if snapshot.WhosSet == oldName {
			snapshot.WhosSet = newName
		}
	}
	return nil
}

func (m *MemoryStore) UpdateUsernameInActions(_ context.Context, oldName, newName string) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, action := range m.actions {
		if action.Setter == oldName {
			action.Setter = newName
		}
		if action.Receiver == oldName {
			action.Receiver = newName
		}
		if action.LetterTo == oldName {
			action.LetterTo = newName
		}
		if action.Author == oldName {
			action.Author = newName
		}
	}
	return nil
}

func (m *MemoryStore) ListGamesWithUnsynced(_ context.Context) ([]int64, error) {
	if !m.ready.Load() {
		return nil, &ErrNotReady{}
	}
	m.lock.RLock()
	defer m.lock.RUnlock()
	seen := make(map[int64]struct{})
	var gameIDs []int64
	for _, action := range m.actions {
		if action.Synced {
			continue
		}
		if _, ok := seen[action.GameID]; ok {
			continue
		}
		seen[action.GameID] = struct{}{}
		gameIDs = append(gameIDs, action.GameID)
	}
	for _, action := range m.pending {
		if _, ok := seen[action.GameID]; ok {
			continue
		}
		seen[action.GameID] = struct{}{}
		gameIDs = append(gameIDs, action.GameID)
	}
	return gameIDs, nil
}

func (m *MemoryStore) AppendSyncLog(_ context.Context, entry *SyncLogEntry) error {
	if !m.ready.Load() {
		return &ErrNotReady{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	copied := *entry
	m.syncLog = append(m.syncLog, &copied)
	return nil
}

// SyncLog returns a copy of the audit trail, oldest first.
func (m *MemoryStore) SyncLog() []*SyncLogEntry {
	m.lock.RLock()
	defer m.lock.RUnlock()
	entries := make([]*SyncLogEntry, len(m.syncLog))
	for i, entry := range m.syncLog {
		copied := *entry
		entries[i] = &copied
	}
	return entries
}

var _ Store = &MemoryStore{}
