// Package fanout is the in-process publish/subscribe hub for alert events.
// No queue, no replay: an event reaches exactly the handlers registered at
// the moment Publish is called, at most once each.
package fanout

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

// ErrSlowSubscriber is returned by transport handlers whose delivery buffer
// is full. The hub treats it like any other handler error and deregisters
// the subscriber.
var ErrSlowSubscriber = errors.New("subscriber not keeping up")

// Handler receives one event per Publish call. Handlers must not block;
// transports are expected to hand off to a buffered channel and report
// ErrSlowSubscriber when it is full. A non-nil error (or a panic)
// deregisters the handler.
type Handler func(models.AlertEvent) error

// Hub is safe for concurrent Subscribe, Publish and Close.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]Handler
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]Handler)}
}

// Subscribe registers a handler and returns its deregistration func, which
// is idempotent. Subscribing to a closed hub is a no-op.
func (h *Hub) Subscribe(fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to every currently-registered handler in registration
// order and returns the number of successful deliveries. A handler that
// fails or panics does not stop delivery to the rest; it is deregistered.
// Publishing on a closed hub delivers nothing.
func (h *Hub) Publish(ev models.AlertEvent) int {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = h.subs[id]
	}
	h.mu.RUnlock()

	delivered := 0
	var dead []uint64
	for i, fn := range handlers {
		if err := deliver(fn, ev); err != nil {
			log.Printf("fanout: dropping subscriber %d: %v", ids[i], err)
			dead = append(dead, ids[i])
			continue
		}
		delivered++
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, id := range dead {
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
	return delivered
}

// Close deregisters all subscribers and makes later Publish and Subscribe
// calls no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[uint64]Handler)
}

func deliver(fn Handler, ev models.AlertEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ev)
}
