package types

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// MaxLetters is the number of letters that eliminates a player.
	MaxLetters = 3

	// NoTrickCalled is the sentinel value for the called trick when the
	// setter has not called one yet.
	NoTrickCalled = ""
)

// Outcome is the tri-state result of a single player's attempt at a trick.
type Outcome string

const (
	OutcomeUndecided Outcome = "undecided"
	OutcomeLanded    Outcome = "landed"
	OutcomeFell      Outcome = "fell"
)

// Decided reports whether the outcome has been submitted.
func (o Outcome) Decided() bool {
	return o == OutcomeLanded || o == OutcomeFell
}

// ParseOutcome parses an outcome string as stored in the database or
// carried on the wire.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeUndecided, OutcomeLanded, OutcomeFell:
		return Outcome(s), nil
	default:
		return OutcomeUndecided, fmt.Errorf("unknown outcome: %s", s)
	}
}

// GameStatus is the lifecycle state of a game session.
type GameStatus string

const (
	GameStatusPending  GameStatus = "pending"
	GameStatusPlaying  GameStatus = "playing"
	GameStatusGameOver GameStatus = "gameOver"
)

// GameSnapshot is the latest locally-known mirror of server truth for one
// game. One row per game in the local store.
type GameSnapshot struct {
	GameID        int64      `json:"gameId"`
	P1Username    string     `json:"p1Username"`
	P1UserID      int64      `json:"p1UserId"`
	P2Username    string     `json:"p2Username"`
	P2UserID      int64      `json:"p2UserId"`
	P1Letters     int        `json:"p1Letters"`
	P2Letters     int        `json:"p2Letters"`
	WhosSet       string     `json:"whosSet"`
	CalledTrick   string     `json:"calledTrick"`
	StatusMessage string     `json:"statusMessage"`
	LastSyncedAt  *time.Time `json:"lastSyncedAt,omitempty"`
	Dirty         bool       `json:"dirty"`
}

// LettersFor returns the letter count for the given username. Unknown
// usernames report zero letters.
func (s *GameSnapshot) LettersFor(username string) int {
	switch username {
	case s.P1Username:
		return s.P1Letters
	case s.P2Username:
		return s.P2Letters
	}
	return 0
}

// SetLettersFor sets the letter count for the given username, clamped to
// [0, MaxLetters].
func (s *GameSnapshot) SetLettersFor(username string, letters int) {
	if letters < 0 {
		letters = 0
	}
	if letters > MaxLetters {
		letters = MaxLetters
	}
	switch username {
	case s.P1Username:
		s.P1Letters = letters
	case s.P2Username:
		s.P2Letters = letters
	}
}

// Opponent returns the other player's username.
func (s *GameSnapshot) Opponent(username string) string {
	if username == s.P1Username {
		return s.P2Username
	}
	return s.P1Username
}

// RoundAction is an immutable record of one resolved round, queued for
// delivery to the server. Only the Synced flag is ever mutated after
// creation.
type RoundAction struct {
	ID              string    `json:"id"`
	GameID          int64     `json:"gameId"`
	RoundNumber     int       `json:"roundNumber"`
	Setter          string    `json:"setter"`
	Receiver        string    `json:"receiver"`
	Trick           string    `json:"trick"`
	SetterOutcome   Outcome   `json:"setterOutcome"`
	ReceiverOutcome Outcome   `json:"receiverOutcome"`
	LetterTo        string    `json:"letterTo"`
	Author          string    `json:"author"`
	CreatedAt       time.Time `json:"createdAt"`
	Synced          bool      `json:"synced"`
}

// PendingActionType enumerates the generic mutations that must eventually
// reach the server but are not themselves rounds.
type PendingActionType string

const (
	PendingActionLetterUpdate  PendingActionType = "letter_update"
	PendingActionStatusMessage PendingActionType = "status_message"
	PendingActionPauseGame     PendingActionType = "pause_game"
	PendingActionResumeGame    PendingActionType = "resume_game"
)

// PendingAction is a generic envelope for a queued server mutation.
type PendingAction struct {
	ID        string            `json:"id"`
	GameID    int64             `json:"gameId"`
	Type      PendingActionType `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	CreatedAt time.Time         `json:"createdAt"`
	Attempts  int               `json:"attempts"`
}

// LetterUpdatePayload is the payload for PendingActionLetterUpdate.
type LetterUpdatePayload struct {
	Username string `json:"username"`
	Letters  int    `json:"letters"`
}

// StatusMessagePayload is the payload for PendingActionStatusMessage.
type StatusMessagePayload struct {
	Message string `json:"message"`
}
