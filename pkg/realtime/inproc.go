package realtime

import (
	"context"
	"sync"

	"skatesync/pkg/queue"
)

// InProcChannel is a loopback Channel for tests and single-process use.
// It stands in for the broker: Publish assigns the timestamp and fans
// the event out to every subscribed queue. Duplicates and self-echo can
// be injected to exercise the at-least-once, unordered contract.
type InProcChannel struct {
	mutex       sync.Mutex
	clock       int64
	subscribers map[*subscription]struct{}

	// Duplicates controls how many extra copies of each published event
	// are delivered. Zero means exactly-once behavior.
	Duplicates int
	// EchoSelf delivers published events back to the publisher's own
	// subscriptions, simulating a broker that echoes to all topic
	// members.
	EchoSelf bool
}

type subscription struct {
	gameID int64
	queue  queue.Queue
	owner  string
}

func NewInProcChannel() *InProcChannel {
	return &InProcChannel{
		subscribers: make(map[*subscription]struct{}),
	}
}

// Session returns a Channel bound to one participant's event queue.
func (c *InProcChannel) Session(owner string, eventQueue queue.Queue) *InProcSession {
	return &InProcSession{
		broker:     c,
		owner:      owner,
		eventQueue: eventQueue,
	}
}

func (c *InProcChannel) publish(event *Event, sender string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.clock++
	delivered := *event
	delivered.Timestamp = c.clock

	for sub := range c.subscribers {
		if sub.gameID != delivered.GameID {
			continue
		}
		if sub.owner == sender && !c.EchoSelf {
			continue
		}
		for i := 0; i <= c.Duplicates; i++ {
			copied := delivered
			sub.queue.Enqueue(&copied)
		}
	}
}

func (c *InProcChannel) subscribe(sub *subscription) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.subscribers[sub] = struct{}{}
}

func (c *InProcChannel) unsubscribe(sub *subscription) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.subscribers, sub)
}

// InProcSession is one participant's Channel on an InProcChannel.
type InProcSession struct {
	broker     *InProcChannel
	owner      string
	eventQueue queue.Queue
	mutex      sync.Mutex
	current    *subscription
}

func (s *InProcSession) Subscribe(_ context.Context, gameID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.current != nil {
		s.broker.unsubscribe(s.current)
	}
	s.current = &subscription{
		gameID: gameID,
		queue:  s.eventQueue,
		owner:  s.owner,
	}
	s.broker.subscribe(s.current)

	return nil
}

func (s *InProcSession) Publish(_ context.Context, event *Event) error {
	s.broker.publish(event, s.owner)
	return nil
}

func (s *InProcSession) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current != nil {
		s.broker.unsubscribe(s.current)
		s.current = nil
	}
	return nil
}
