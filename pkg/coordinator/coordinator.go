// Package coordinator consumes the realtime channel's inbound events
// for one game and applies each to local state exactly once. Events
// arrive at-least-once and unordered; each is treated as individually
// idempotent and deduplicated by (type, gameID, broker timestamp).
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"skatesync/pkg/game"
	gametypes "skatesync/pkg/game/types"
	"skatesync/pkg/log"
	"skatesync/pkg/queue"
	"skatesync/pkg/realtime"
)

const (
	// DefaultDedupCapacity bounds the recently-seen key set.
	DefaultDedupCapacity = 256
	// DefaultDrainInterval is how often the inbound queue is drained.
	DefaultDrainInterval = 50 * time.Millisecond
)

type Coordinator struct {
	session       *game.Session
	channel       realtime.Channel
	eventQueue    queue.Queue
	deviceID      string
	drainInterval time.Duration

	mutex  sync.Mutex
	gameID int64
	dedup  *recencySet
}

type NewCoordinatorOptions struct {
	Session *game.Session
	Channel realtime.Channel
	// EventQueue is where the transport enqueues inbound events.
	EventQueue queue.Queue
	// DeviceID suppresses echoes of this device's own publishes.
	DeviceID string
	// DedupCapacity overrides DefaultDedupCapacity. Zero means default.
	DedupCapacity int
	// DrainInterval overrides DefaultDrainInterval. Zero means default.
	DrainInterval time.Duration
}

func NewCoordinator(opts NewCoordinatorOptions) *Coordinator {
	capacity := opts.DedupCapacity
	if capacity == 0 {
		capacity = DefaultDedupCapacity
	}
	drainInterval := opts.DrainInterval
	if drainInterval == 0 {
		drainInterval = DefaultDrainInterval
	}

	return &Coordinator{
		session:       opts.Session,
		channel:       opts.Channel,
		eventQueue:    opts.EventQueue,
		deviceID:      opts.DeviceID,
		drainInterval: drainInterval,
		dedup:         newRecencySet(capacity),
	}
}

// Subscribe attaches to a game's topic. The dedup set resets with every
// new subscription to bound memory across games.
func (c *Coordinator) Subscribe(ctx context.Context, gameID int64) error {
	c.mutex.Lock()
	c.gameID = gameID
	c.dedup.reset()
	c.mutex.Unlock()

	if err := c.channel.Subscribe(ctx, gameID); err != nil {
		return fmt.Errorf("failed to subscribe to game %d: %v", gameID, err)
	}

	return nil
}

// Start drains the inbound event queue until the context is done.
func (c *Coordinator) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

func (c *Coordinator) drain(ctx context.Context) {
	items, err := c.eventQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read inbound events: %v", err)
		return
	}
	for _, item := range items {
		event, ok := item.(*realtime.Event)
		if !ok {
			log.Error("Failed to cast inbound item to realtime.Event")
			continue
		}
		c.handleEvent(ctx, event)
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event *realtime.Event) {
	if event.Sender == c.deviceID {
		log.Trace("Ignoring echo of own event %s", event.ID)
		return
	}

	c.mutex.Lock()
	if event.GameID != c.gameID {
		c.mutex.Unlock()
		log.Trace("Ignoring event for game %d, subscribed to %d", event.GameID, c.gameID)
		return
	}
	duplicate := c.dedup.seen(event.DedupKey())
	c.mutex.Unlock()

	if duplicate {
		log.Trace("Ignoring duplicate event %s", event.DedupKey())
		return
	}

	if err := c.applyEvent(ctx, event); err != nil {
		log.Error("Failed to apply %s event: %v", event.Type, err)
	}
}

func (c *Coordinator) applyEvent(ctx context.Context, event *realtime.Event) error {
	switch event.Type {
	case realtime.EventTypeTrickCalled:
		payload := &realtime.TrickCalledPayload{}
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal trick called payload: %v", err)
		}
		c.session.ApplyPeerTrickCall(payload)

	case realtime.EventTypeLetterUpdate:
		payload := &realtime.LetterUpdatePayload{}
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal letter update payload: %v", err)
		}
		c.session.ApplyPeerLetterUpdate(payload)

	case realtime.EventTypeRoundResolved:
		payload := &realtime.RoundResolvedPayload{}
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal round resolved payload: %v", err)
		}
		c.session.ApplyPeerRound(payload)

	case realtime.EventTypeLastTry:
		payload := &realtime.LastTryPayload{}
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal last try payload: %v", err)
		}
		c.session.ApplyPeerLastTry(payload)

	case realtime.EventTypeSyncRequest:
		return c.answerSyncRequest(ctx, event)

	case realtime.EventTypeSyncResponse:
		payload := &realtime.SyncResponsePayload{}
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			return fmt.Errorf("failed to unmarshal sync response payload: %v", err)
		}
		c.session.ApplyPeerSyncState(payload)

	default:
		return fmt.Errorf("unhandled event type: %s", event.Type)
	}

	return nil
}

// answerSyncRequest replies with this client's state, but only when it
// holds a non-default called trick. A peer that just reconnected with
// no live trick has nothing useful to offer and stays quiet.
func (c *Coordinator) answerSyncRequest(ctx context.Context, request *realtime.Event) error {
	if c.session.CalledTrick() == gametypes.NoTrickCalled {
		log.Trace("No called trick, not answering sync request")
		return nil
	}

	snapshot := c.session.Snapshot()
	response, err := realtime.NewEvent(realtime.EventTypeSyncResponse, request.GameID, c.deviceID,
		&realtime.SyncResponsePayload{
			WhosSet:     snapshot.WhosSet,
			CalledTrick: snapshot.CalledTrick,
			P1Letters:   snapshot.P1Letters,
			P2Letters:   snapshot.P2Letters,
		})
	if err != nil {
		return fmt.Errorf("failed to build sync response: %v", err)
	}

	if err := c.channel.Publish(ctx, response); err != nil {
		return fmt.Errorf("failed to publish sync response: %v", err)
	}

	return nil
}

// RequestSync asks peers for current state after a reconnect.
func (c *Coordinator) RequestSync(ctx context.Context) error {
	c.mutex.Lock()
	gameID := c.gameID
	c.mutex.Unlock()

	event, err := realtime.NewEvent(realtime.EventTypeSyncRequest, gameID, c.deviceID,
		&realtime.SyncRequestPayload{Requester: c.deviceID})
	if err != nil {
		return fmt.Errorf("failed to build sync request: %v", err)
	}

	if err := c.channel.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish sync request: %v", err)
	}

	return nil
}
