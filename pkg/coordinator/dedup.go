package coordinator

// recencySet is a fixed-capacity set of recently-seen dedup keys. When
// full, the oldest key is evicted. Bounded on purpose: it caps memory
// while preserving the practical dedup window for duplicate realtime
// deliveries.
type recencySet struct {
	capacity int
	ring     []string
	next     int
	index    map[string]struct{}
}

func newRecencySet(capacity int) *recencySet {
	return &recencySet{
		capacity: capacity,
		ring:     make([]string, capacity),
		index:    make(map[string]struct{}, capacity),
	}
}

// seen reports whether the key was recorded and records it if not.
func (r *recencySet) seen(key string) bool {
	if _, ok := r.index[key]; ok {
		return true
	}

	if evicted := r.ring[r.next]; evicted != "" {
		delete(r.index, evicted)
	}
	r.ring[r.next] = key
	r.index[key] = struct{}{}
	r.next = (r.next + 1) % r.capacity

	return false
}

// reset clears the set. Called on every new game subscription.
func (r *recencySet) reset() {
	r.ring = make([]string, r.capacity)
	r.index = make(map[string]struct{}, r.capacity)
	r.next = 0
}
