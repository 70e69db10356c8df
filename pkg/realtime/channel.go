// Package realtime is the publish/subscribe session for a game's topic.
// The contract is at-least-once, unordered, occasionally duplicated
// delivery; consumers dedup by the event's broker-assigned timestamp.
// Connection handshake and reconnection mechanics live outside this
// core; this package only exposes publish and subscribe primitives.
package realtime

import "context"

// Channel is a connected publish/subscribe session.
type Channel interface {
	// Subscribe attaches to a game's topic. Inbound events are enqueued
	// on the returned queue's behalf via the queue passed at
	// construction; Subscribe replaces any previous topic.
	Subscribe(ctx context.Context, gameID int64) error
	// Publish sends an event to the current topic. The broker assigns
	// the delivery timestamp.
	Publish(ctx context.Context, event *Event) error
	Close() error
}
