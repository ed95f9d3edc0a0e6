// Package events fans task lifecycle events out to live subscribers and keeps
// a bounded history so a reconnecting client can catch up by ID.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultHistory is used when NewHub is given a non-positive capacity.
	DefaultHistory = 100
	// subscriberBuffer bounds how far a subscriber may lag before events are
	// dropped for it.
	subscriberBuffer = 64
)

// Event is one published record. Data is the JSON encoding of the payload.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a ring of recent events.
// Publish never blocks on slow subscribers.
type Hub struct {
	nextID atomic.Int64

	mu      sync.Mutex
	history []Event
	head    int
	count   int

	subs    map[int]chan Event
	nextSub int
	dropped atomic.Int64
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Hub{
		history: make([]Event, capacity),
		subs:    make(map[int]chan Event),
	}
}

// Publish records an event and offers it to every subscriber. A payload that
// cannot be encoded is published as an empty object.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.record(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of future events and a cancel func that closes
// it. Cancel is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Since returns retained events with ID greater than lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.count)
	for i := 0; i < h.count; i++ {
		ev := h.history[(h.head+i)%len(h.history)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribers is the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) record(ev Event) {
	if h.count < len(h.history) {
		h.history[(h.head+h.count)%len(h.history)] = ev
		h.count++
		return
	}
	h.history[h.head] = ev
	h.head = (h.head + 1) % len(h.history)
}
