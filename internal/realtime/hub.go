// Package realtime delivers item-added events to live subscribers.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/erazemk/najdeno/internal/model"
)

// DefaultBuffer is the per-subscriber channel capacity used when none is given.
const DefaultBuffer = 16

// Publisher accepts newly created items.
type Publisher interface {
	Publish(item model.Item)
}

// Hub fans newly created items out to subscribers. A subscriber whose
// buffer is full misses the event instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan model.Item
	nextID  uint64
	closed  bool
	dropped atomic.Uint64

	// OnDrop, if set, is called for every event a slow subscriber misses.
	OnDrop func()
	// OnPublish, if set, is called once per published item.
	OnPublish func()
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan model.Item)}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan model.Item, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan model.Item, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
			h.mu.Unlock()
		})
	}
}

// Publish delivers item to every current subscriber.
func (h *Hub) Publish(item model.Item) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	if h.OnPublish != nil {
		h.OnPublish()
	}
	for _, ch := range h.subs {
		select {
		case ch <- item:
		default:
			h.dropped.Add(1)
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// Dropped returns the number of events missed by slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes all subscriber channels. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
