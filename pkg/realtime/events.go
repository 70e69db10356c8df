package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event types carried on a game topic.
const (
	EventTypeTrickCalled   = "trick_called"
	EventTypeLetterUpdate  = "letter_update"
	EventTypeRoundResolved = "round_resolved"
	EventTypeLastTry       = "last_try"
	EventTypeSyncRequest   = "sync_request"
	EventTypeSyncResponse  = "sync_response"
)

// Event is the envelope for one realtime event on a game topic.
// Delivery is at-least-once and unordered; Timestamp is assigned by the
// broker and is the basis of the dedup key.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	GameID    int64           `json:"gameId"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
	Payload   json.RawMessage `json:"payload"`
}

// DedupKey identifies an event for duplicate suppression.
func (e *Event) DedupKey() string {
	return fmt.Sprintf("%s:%d:%d", e.Type, e.GameID, e.Timestamp)
}

// TrickCalledPayload announces the setter's called trick.
type TrickCalledPayload struct {
	Trick   string `json:"trick"`
	WhosSet string `json:"whosSet"`
}

// LetterUpdatePayload announces a player's new letter count.
type LetterUpdatePayload struct {
	Username string `json:"username"`
	Letters  int    `json:"letters"`
}

// RoundResolvedPayload carries a peer's resolved round. LetterCount is
// the recipient's absolute count after the round, so applying the event
// is idempotent regardless of what arrived before it.
type RoundResolvedPayload struct {
	RoundNumber     int    `json:"roundNumber"`
	Setter          string `json:"setter"`
	Receiver        string `json:"receiver"`
	Trick           string `json:"trick"`
	SetterOutcome   string `json:"setterOutcome"`
	ReceiverOutcome string `json:"receiverOutcome"`
	LetterTo        string `json:"letterTo,omitempty"`
	LetterCount     int    `json:"letterCount,omitempty"`
}

// LastTryPayload announces that a player entered their last try.
type LastTryPayload struct {
	Username string `json:"username"`
}

// SyncRequestPayload asks peers for current state after a reconnect.
type SyncRequestPayload struct {
	Requester string `json:"requester"`
}

// SyncResponsePayload answers a sync request with the responder's view.
// Only peers holding a non-default called trick answer.
type SyncResponsePayload struct {
	WhosSet     string `json:"whosSet"`
	CalledTrick string `json:"calledTrick"`
	P1Letters   int    `json:"p1Letters"`
	P2Letters   int    `json:"p2Letters"`
}

// NewEvent builds an envelope with a marshaled payload. The broker
// assigns Timestamp on delivery.
func NewEvent(eventType string, gameID int64, sender string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %v", err)
	}
	return &Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		GameID:  gameID,
		Sender:  sender,
		Payload: b,
	}, nil
}
