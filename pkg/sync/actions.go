package sync

import (
	"context"
	"encoding/json"
	"fmt"

	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/store"
)

// QueuePendingAction durably queues a non-round mutation for delivery
// and attempts an immediate flush when online.
func (e *Engine) QueuePendingAction(ctx context.Context, action *gametypes.PendingAction) error {
	if _, err := e.store.QueuePendingAction(ctx, action); err != nil {
		return fmt.Errorf("failed to queue pending action: %v", err)
	}

	if e.monitor.IsOnline() {
		if err := e.FlushPendingActions(ctx, action.GameID); err != nil {
			log.Debug("Immediate flush after queue failed for game %d: %v", action.GameID, err)
		}
	}

	return nil
}

// FlushPendingActions delivers queued non-round mutations in creation
// order. A failed delivery increments the attempts counter and leaves
// the action queued; it does not abort the batch. Single-flight like
// SyncGame: a flush requested while one is running is skipped, the
// ticker picks the actions up on its next pass.
func (e *Engine) FlushPendingActions(ctx context.Context, gameID int64) error {
	if !e.monitor.IsOnline() {
		return nil
	}
	if !e.tryBeginFlush() {
		return nil
	}
	defer e.endFlush()

	actions, err := e.store.GetPendingActions(ctx, gameID)
	if err != nil {
		if store.IsNotReady(err) {
			return nil
		}
		return fmt.Errorf("failed to load pending actions: %v", err)
	}

	for _, action := range actions {
		if err := e.deliverPendingAction(ctx, action); err != nil {
			log.Warn("Failed to deliver pending action %s (%s) for game %d: %v",
				action.ID, action.Type, gameID, err)
			if err := e.store.IncrementPendingAttempts(ctx, action.ID); err != nil {
				log.Error("Failed to increment attempts for pending action %s: %v", action.ID, err)
			}
			continue
		}
		if err := e.store.DeletePendingAction(ctx, action.ID); err != nil {
			log.Error("Failed to delete delivered pending action %s: %v", action.ID, err)
		}
	}

	return nil
}

func (e *Engine) deliverPendingAction(ctx context.Context, action *gametypes.PendingAction) error {
	switch action.Type {
	case gametypes.PendingActionLetterUpdate:
		payload := &gametypes.LetterUpdatePayload{}
		if err := json.Unmarshal(action.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal letter update payload: %v", err)
		}
		return e.gameService.UpdateLetters(ctx, action.GameID, payload.Username, payload.Letters)
	case gametypes.PendingActionStatusMessage:
		payload := &gametypes.StatusMessagePayload{}
		if err := json.Unmarshal(action.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal status message payload: %v", err)
		}
		return e.gameService.UpdateStatusMessage(ctx, action.GameID, payload.Message)
	case gametypes.PendingActionPauseGame:
		return e.gameService.PauseGame(ctx, action.GameID)
	case gametypes.PendingActionResumeGame:
		return e.gameService.ResumeGame(ctx, action.GameID)
	default:
		return fmt.Errorf("unhandled pending action type: %s", action.Type)
	}
}

// CompleteGame reports the terminal state to the server and clears all
// local data for the game. The clear is atomic; a partial failure
// propagates and leaves local data intact for retry.
func (e *Engine) CompleteGame(ctx context.Context, gameID int64) error {
	if err := e.gameService.CompleteGame(ctx, gameID); err != nil {
		return fmt.Errorf("failed to complete game: %v", err)
	}
	if err := e.store.ClearGameData(ctx, gameID); err != nil {
		return fmt.Errorf("failed to clear game data: %v", err)
	}
	return nil
}

// CancelGame reports cancellation to the server and clears local data.
func (e *Engine) CancelGame(ctx context.Context, gameID int64) error {
	if err := e.gameService.CancelGame(ctx, gameID); err != nil {
		return fmt.Errorf("failed to cancel game: %v", err)
	}
	if err := e.store.ClearGameData(ctx, gameID); err != nil {
		return fmt.Errorf("failed to clear game data: %v", err)
	}
	return nil
}

// PauseGame reports the pause to the server when online; offline it is
// queued as a pending action.
func (e *Engine) PauseGame(ctx context.Context, gameID int64) error {
	if e.monitor.IsOnline() {
		err := e.gameService.PauseGame(ctx, gameID)
		if err == nil {
			return nil
		}
		log.Warn("Failed to pause game %d directly, queuing: %v", gameID, err)
	}
	return e.QueuePendingAction(ctx, &gametypes.PendingAction{
		GameID:  gameID,
		Type:    gametypes.PendingActionPauseGame,
		Payload: json.RawMessage(`{}`),
	})
}

// ResumeGame reports the resume to the server when online; offline it
// is queued as a pending action.
func (e *Engine) ResumeGame(ctx context.Context, gameID int64) error {
	if e.monitor.IsOnline() {
		err := e.gameService.ResumeGame(ctx, gameID)
		if err == nil {
			return nil
		}
		log.Warn("Failed to resume game %d directly, queuing: %v", gameID, err)
	}
	return e.QueuePendingAction(ctx, &gametypes.PendingAction{
		GameID:  gameID,
		Type:    gametypes.PendingActionResumeGame,
		Payload: json.RawMessage(`{}`),
	})
}

// RenamePlayer rewrites every stored reference to a username in a
// single pass: historical round actions (setter, receiver, letter
// recipient, author) and live snapshots (player names, whosSet).
func (e *Engine) RenamePlayer(ctx context.Context, oldName, newName string) error {
	if err := e.store.UpdateUsernameInActions(ctx, oldName, newName); err != nil {
		return fmt.Errorf("failed to update username in actions: %v", err)
	}
	if err := e.store.UpdateUsernameInGameStates(ctx, oldName, newName); err != nil {
		return fmt.Errorf("failed to update username in game states: %v", err)
	}
	return nil
}
