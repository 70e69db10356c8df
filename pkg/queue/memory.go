package queue

import (
	"fmt"
	"sync"
)

// InMemoryQueue implements a bounded in-memory queue.
type InMemoryQueue struct {
	ch   chan interface{}
	lock sync.RWMutex
}

// NewInMemoryQueue creates a new queue holding at most maxSize items.
func NewInMemoryQueue(maxSize int) *InMemoryQueue {
	return &InMemoryQueue{
		ch: make(chan interface{}, maxSize),
	}
}

// Enqueue adds an item to the end of the queue. It fails when the queue
// is full rather than blocking the caller's read loop.
func (q *InMemoryQueue) Enqueue(item interface{}) error {
	q.lock.Lock()
	defer q.lock.Unlock()
	select {
	case q.ch <- item:
		return nil
	default:
		return fmt.Errorf("queue is full")
	}
}

// Dequeue removes and returns the item from the front of the queue.
func (q *InMemoryQueue) Dequeue() (interface{}, error) {
	q.lock.Lock()
	defer q.lock.Unlock()
	select {
	case item := <-q.ch:
		return item, nil
	default:
		return nil, fmt.Errorf("queue is empty")
	}
}

// Size returns the current size of the queue.
func (q *InMemoryQueue) Size() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return len(q.ch)
}

// ReadAllMessages reads all pending messages in the queue.
func (q *InMemoryQueue) ReadAllMessages() ([]interface{}, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	var messages []interface{}
	for len(q.ch) > 0 {
		messages = append(messages, <-q.ch)
	}

	return messages, nil
}

// ClearQueue clears all messages from the queue.
func (q *InMemoryQueue) ClearQueue() error {
	q.lock.Lock()
	defer q.lock.Unlock()

	for len(q.ch) > 0 {
		<-q.ch
	}

	return nil
}
