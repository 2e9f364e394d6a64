package events

import (
	"log/slog"
	"sync"
)

// subscriberQueue bounds each subscriber's backlog.
const subscriberQueue = 64

// Hub records recent events and broadcasts new ones to subscribers.
// Publish never blocks: a slow subscriber loses its oldest queued event.
type Hub struct {
	mu     sync.RWMutex
	recent *Ring
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewHub creates a hub retaining bufferSize recent events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		recent: NewRing(bufferSize),
		subs:   make(map[int]chan Event),
		logger: logger.With("component", "events"),
	}
}

// Publish records ev and delivers it to every subscriber.
func (h *Hub) Publish(ev Event) {
	h.recent.Add(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}

		// Queue full: drop the oldest and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber", "subscriber", id, "event_id", ev.ID)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueue)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber registered", "subscriber", id)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
			h.logger.Debug("subscriber unregistered", "subscriber", id)
		})
	}
}

// Recent returns the retained events oldest first.
func (h *Hub) Recent() []Event {
	return h.recent.Snapshot()
}

// Stats describes the hub's retained backlog and subscribers.
type Stats struct {
	Buffered    int `json:"buffered"`
	Capacity    int `json:"capacity"`
	Subscribers int `json:"subscribers"`
}

// Stats returns the current backlog size and subscriber count.
func (h *Hub) Stats() Stats {
	return Stats{
		Buffered:    h.recent.Len(),
		Capacity:    h.recent.Capacity(),
		Subscribers: h.Subscribers(),
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
