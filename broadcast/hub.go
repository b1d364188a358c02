// Package broadcast fans capture events out to live listeners: SSE clients,
// webhooks and anything else that subscribes to a Hub.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/mediatap/store"
)

// Event types.
const (
	EventCapture = "capture"
	EventClear   = "clear"
)

// Event is what subscribers receive.
type Event struct {
	Type      string        `json:"type"`
	Record    *store.Record `json:"record,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Total     int           `json:"total"`
	Timestamp int64         `json:"timestamp"`
}

// CaptureEvent builds the event published when rec is observed.
func CaptureEvent(rec store.Record, duplicate bool, total int) Event {
	return Event{
		Type:      EventCapture,
		Record:    &rec,
		Duplicate: duplicate,
		Total:     total,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ClearEvent builds the event published after the store is emptied.
func ClearEvent(cleared int) Event {
	return Event{Type: EventClear, Total: cleared, Timestamp: time.Now().UnixMilli()}
}

// Hub delivers each published Event to every current subscriber.
// Delivery never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscription is one listener's view of the hub.
type Subscription struct {
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// Events returns the channel events arrive on. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if _, ok := s.hub.subs[s]; ok {
			delete(s.hub.subs, s)
			close(s.ch)
		}
	})
}

// Subscribe registers a new listener. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish hands ev to every subscriber and returns how many accepted it.
func (h *Hub) Publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- ev:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscription and rejects future subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}
