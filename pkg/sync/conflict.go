package sync

import (
	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/server"
)

// ResolutionServerWins is the only implemented conflict policy.
const ResolutionServerWins = "server_wins"

// ConflictInfo describes one divergence between a locally-queued round
// action and the server's recorded outcome for the same turn number.
// Transient, in-memory only; it drives user-facing notices and the
// decision to overwrite local fields from server fields.
type ConflictInfo struct {
	RoundNumber int
	Local       *gametypes.RoundAction
	Server      *server.Trick
	Resolution  string
}

// detectConflicts joins unsynced local actions against the server's
// recorded tricks by turn number. A conflict exists when the landed
// flags or the letter recipient disagree. A server turn the local queue
// matches exactly is a benign duplicate, not a conflict.
func detectConflicts(actions []*gametypes.RoundAction, serverState *server.GameState) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, action := range actions {
		recorded := serverState.TrickForTurn(action.RoundNumber)
		if recorded == nil {
			continue
		}
		if outcomesAgree(action, recorded) {
			continue
		}
		conflicts = append(conflicts, ConflictInfo{
			RoundNumber: action.RoundNumber,
			Local:       action,
			Server:      recorded,
			Resolution:  ResolutionServerWins,
		})
	}
	return conflicts
}

func outcomesAgree(action *gametypes.RoundAction, recorded *server.Trick) bool {
	if (action.SetterOutcome == gametypes.OutcomeLanded) != recorded.SetterLanded {
		return false
	}
	if (action.ReceiverOutcome == gametypes.OutcomeLanded) != recorded.ReceiverLanded {
		return false
	}
	if action.LetterTo != recorded.LetterAssignedToUsername {
		return false
	}
	return true
}

func isConflicted(conflicts []ConflictInfo, actionID string) bool {
	for i := range conflicts {
		if conflicts[i].Local.ID == actionID {
			return true
		}
	}
	return false
}
