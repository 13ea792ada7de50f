// Package progress fans out analysis progress events to listeners without
// ever blocking the producer.
package progress

import (
	"sync"
	"time"
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further events follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Event is one progress report for a session.
type Event struct {
	SessionID        string    `json:"session_id"`
	Status           Status    `json:"status"`
	Percent          int       `json:"progress"`
	Stage            string    `json:"stage"`
	RalliesFound     int       `json:"rallies_found"`
	MistakesDetected int       `json:"mistakes_detected"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Sink receives progress events. Publish must not block.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Subscription is one listener's view of a session.
type Subscription struct {
	session string
	ch      chan Event
	closed  bool
}

// Events returns the channel of events. It is closed after the terminal
// event or when the subscription is removed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Hub keeps the latest event per session and broadcasts new ones to
// subscribers through buffered channels. A subscriber whose buffer is full
// misses the event, except the terminal one, which replaces the oldest
// buffered event.
type Hub struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
	last   map[string]Event
	onDrop func()
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
		last:   make(map[string]Event),
	}
}

// OnDrop registers a callback invoked whenever an event is dropped for a
// slow subscriber.
func (h *Hub) OnDrop(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = f
}

// Publish records e as the session's latest event and delivers it. Percent
// never decreases within a session, and events after a terminal one are
// ignored.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.last[e.SessionID]; ok {
		if prev.Status.Terminal() {
			return
		}
		if e.Percent < prev.Percent {
			e.Percent = prev.Percent
		}
	}
	if e.Status == StatusCompleted {
		e.Percent = 100
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h.last[e.SessionID] = e

	for sub := range h.subs[e.SessionID] {
		select {
		case sub.ch <- e:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
			if e.Status.Terminal() {
				h.evictAndSend(sub, e)
			}
		}
		if e.Status.Terminal() {
			h.remove(sub)
		}
	}
}

// evictAndSend makes room for e by discarding the oldest buffered event, so
// the terminal event always reaches the subscriber.
func (h *Hub) evictAndSend(sub *Subscription, e Event) {
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- e:
	default:
	}
}

// Subscribe registers a listener for a session. The latest known event, if
// any, is delivered first.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{session: sessionID, ch: make(chan Event, h.buffer)}
	if e, ok := h.last[sessionID]; ok {
		sub.ch <- e
		if e.Status.Terminal() {
			sub.closed = true
			close(sub.ch)
			return sub
		}
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

func (h *Hub) remove(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if set := h.subs[sub.session]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.session)
		}
	}
}

// Last returns the latest event of a session.
func (h *Hub) Last(sessionID string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.last[sessionID]
	return e, ok
}

// Subscribers returns the number of live listeners of a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Forget drops everything the hub knows about a session.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		h.remove(sub)
	}
	delete(h.last, sessionID)
}
