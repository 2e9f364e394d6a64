package events

import "sync"

// Ring keeps the most recent events, overwriting the oldest when full.
type Ring struct {
	mu   sync.RWMutex
	buf  []Event
	head int // next write position
	full bool
}

// NewRing creates a ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 200
	}
	return &Ring{buf: make([]Event, size)}
}

// Add stores ev, dropping the oldest event when the ring is full.
func (r *Ring) Add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// Snapshot returns the stored events oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Event, r.head)
		copy(out, r.buf[:r.head])
		return out
	}

	// Wrapped: head -> end + start -> head
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Len returns the number of stored events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.head
}

// Capacity returns the maximum number of events kept.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
