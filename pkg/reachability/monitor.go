// Package reachability reports the device's online/offline status and
// emits transition events. It wraps a platform connectivity capability;
// the platform glue calls SetOnline from its own callbacks.
package reachability

import (
	"sync"
	"time"
)

// Transition is one online/offline state change.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor reports current connectivity and emits transitions.
type Monitor interface {
	IsOnline() bool
	Transitions() <-chan Transition
}

const transitionBufferSize = 16

// ManualMonitor is a Monitor driven by explicit SetOnline calls from the
// surrounding platform layer. It is also the test double.
type ManualMonitor struct {
	mutex  sync.Mutex
	online bool
	ch     chan Transition
}

func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{
		online: online,
		ch:     make(chan Transition, transitionBufferSize),
	}
}

func (m *ManualMonitor) IsOnline() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.online
}

func (m *ManualMonitor) Transitions() <-chan Transition {
	return m.ch
}

// SetOnline records the new connectivity state. A change emits a
// Transition; if nobody is draining the channel the oldest event is
// dropped rather than blocking the platform callback.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	t := Transition{Online: online, At: time.Now()}
	for {
		select {
		case m.ch <- t:
			return
		default:
			select {
			case <-m.ch:
			default:
			}
		}
	}
}
