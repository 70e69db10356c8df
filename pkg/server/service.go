// Package server is the remote game service boundary: an authenticated
// request capability that can fail, time out, or report conflicts. The
// sync engine treats every error from it as either retryable or an
// already-resolved no-op; nothing here retries on its own.
package server

import (
	"context"
	"time"
)

// GameService is the remote procedure boundary for game mutations.
type GameService interface {
	// ResolveRound records one resolved round server-side. A round the
	// server has already recorded returns ErrAlreadyResolved, which
	// callers must treat as success.
	ResolveRound(ctx context.Context, req *ResolveRoundRequest) error
	// FetchGameState returns the server's authoritative view of a game.
	FetchGameState(ctx context.Context, gameID int64) (*GameState, error)
	// UpdateLetters pushes a letter-count broadcast that is not itself a
	// round (manual overrides delivered as pending actions).
	UpdateLetters(ctx context.Context, gameID int64, username string, letters int) error
	// UpdateStatusMessage pushes a display status change.
	UpdateStatusMessage(ctx context.Context, gameID int64, message string) error

	PauseGame(ctx context.Context, gameID int64) error
	ResumeGame(ctx context.Context, gameID int64) error
	CancelGame(ctx context.Context, gameID int64) error
	CompleteGame(ctx context.Context, gameID int64) error
}

// ResolveRoundRequest is the input for recording one resolved round.
type ResolveRoundRequest struct {
	GameID           int64     `json:"gameId"`
	RoundNumber      int       `json:"roundNumber"`
	SetterUsername   string    `json:"setterUsername"`
	ReceiverUsername string    `json:"receiverUsername"`
	TrickDetails     string    `json:"trickDetails"`
	SetterLanded     bool      `json:"setterLanded"`
	ReceiverLanded   bool      `json:"receiverLanded"`
	LetterAssignTo   string    `json:"letterAssignToUsername,omitempty"`
	AuthorUsername   string    `json:"authorUsername"`
	ClientTimestamp  time.Time `json:"clientTimestamp"`
}

// Player is one player in the server's game state.
type Player struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	PlayerNumber int    `json:"playerNumber"`
	FinalLetters int    `json:"finalLetters"`
}

// Trick is one recorded turn in the server's game state.
type Trick struct {
	TurnNumber               int    `json:"turnNumber"`
	SetterID                 int64  `json:"setterId"`
	ReceiverID               int64  `json:"receiverId"`
	TrickDetails             string `json:"trickDetails"`
	SetterLanded             bool   `json:"setterLanded"`
	ReceiverLanded           bool   `json:"receiverLanded"`
	LetterAssignedToUsername string `json:"letterAssignedToUsername,omitempty"`
}

// GameState is the server's authoritative view of one game.
type GameState struct {
	GameID            int64    `json:"gameId"`
	Players           []Player `json:"players"`
	Tricks            []Trick  `json:"tricks"`
	CurrentTurnUserID int64    `json:"currentTurnUserId"`
	Status            string   `json:"status"`
}

// PlayerByNumber returns the player with the given player number.
func (s *GameState) PlayerByNumber(number int) *Player {
	for i := range s.Players {
		if s.Players[i].PlayerNumber == number {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerByID returns the player with the given user ID.
func (s *GameState) PlayerByID(userID int64) *Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// TrickForTurn returns the recorded trick for a turn number, or nil if
// the server has not recorded that turn.
func (s *GameState) TrickForTurn(turnNumber int) *Trick {
	for i := range s.Tricks {
		if s.Tricks[i].TurnNumber == turnNumber {
			return &s.Tricks[i]
		}
	}
	return nil
}
