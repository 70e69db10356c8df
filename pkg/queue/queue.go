package queue

// Queue represents a basic bounded queue. The realtime transport enqueues
// inbound events from its read loop; the coordinator drains them on its
// own goroutine.
type Queue interface {
	Enqueue(item interface{}) error
	Dequeue() (interface{}, error)
	Size() int
	ReadAllMessages() ([]interface{}, error)
	ClearQueue() error
}
