// Package logstream fans log entries out to live subscribers such as
// websocket clients.
package logstream

import (
	"sync"
	"sync/atomic"

	"renderhub/internal/logbuf"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription receives entries on C until it is cancelled. A subscriber
// that falls behind loses entries rather than slowing the publisher.
type Subscription struct {
	C <-chan logbuf.Entry

	hub     *Hub
	id      uint64
	ch      chan logbuf.Entry
	dropped atomic.Int64
}

// Dropped is the number of entries this subscriber missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Cancel removes the subscription and closes C. It is safe to call twice.
func (s *Subscription) Cancel() { s.hub.remove(s.id) }

// Hub is a logbuf.Listener broadcasting to subscriptions.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan logbuf.Entry, h.buffer)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{C: ch, hub: h, id: h.nextID, ch: ch}
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s.id] = s
	return s
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// OnLogEntry delivers e to every subscriber with room for it.
func (h *Hub) OnLogEntry(e logbuf.Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Len is the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}
