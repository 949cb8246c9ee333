package fanout

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

func event(id string) models.AlertEvent {
	return models.AlertEvent{
		Kind:      "detection",
		ID:        id,
		Severity:  42,
		Level:     "high",
		CreatedAt: time.Now(),
		Message:   "test",
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var a, b int
	hub.Subscribe(func(models.AlertEvent) error { a++; return nil })
	hub.Subscribe(func(models.AlertEvent) error { b++; return nil })

	if n := hub.Publish(event("e1")); n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}
	if a != 1 || b != 1 {
		t.Errorf("handlers saw %d/%d events, want 1/1", a, b)
	}
}

func TestFailingHandlerIsIsolatedAndDropped(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var b int
	hub.Subscribe(func(models.AlertEvent) error { return errors.New("boom") })
	hub.Subscribe(func(models.AlertEvent) error { b++; return nil })

	if n := hub.Publish(event("e1")); n != 1 {
		t.Errorf("expected 1 successful delivery, got %d", n)
	}
	if b != 1 {
		t.Errorf("healthy handler should still receive the event, got %d", b)
	}
	if hub.Len() != 1 {
		t.Errorf("failing handler should be deregistered, %d left", hub.Len())
	}

	// Next publish only reaches the survivor.
	hub.Publish(event("e2"))
	if b != 2 {
		t.Errorf("survivor should keep receiving, got %d", b)
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var b int
	hub.Subscribe(func(models.AlertEvent) error { panic("bad subscriber") })
	hub.Subscribe(func(models.AlertEvent) error { b++; return nil })

	if n := hub.Publish(event("e1")); n != 1 {
		t.Errorf("expected 1 successful delivery, got %d", n)
	}
	if b != 1 || hub.Len() != 1 {
		t.Errorf("panicking handler not isolated: b=%d len=%d", b, hub.Len())
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	hub.Publish(event("early"))

	var seen []string
	hub.Subscribe(func(ev models.AlertEvent) error {
		seen = append(seen, ev.ID)
		return nil
	})

	hub.Publish(event("late"))
	if len(seen) != 1 || seen[0] != "late" {
		t.Errorf("late subscriber saw %v, want only [late]", seen)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var n int
	unsubscribe := hub.Subscribe(func(models.AlertEvent) error { n++; return nil })
	unsubscribe()
	unsubscribe()

	hub.Publish(event("e1"))
	if n != 0 {
		t.Errorf("unsubscribed handler received %d events", n)
	}
	if hub.Len() != 0 {
		t.Errorf("expected empty hub, len=%d", hub.Len())
	}
}

func TestCloseRejectsFurtherTraffic(t *testing.T) {
	hub := NewHub()

	var n int
	hub.Subscribe(func(models.AlertEvent) error { n++; return nil })
	hub.Close()

	if delivered := hub.Publish(event("e1")); delivered != 0 {
		t.Errorf("publish after close delivered %d events", delivered)
	}
	if n != 0 {
		t.Errorf("handler invoked after close")
	}

	hub.Subscribe(func(models.AlertEvent) error { n++; return nil })
	if hub.Len() != 0 {
		t.Errorf("subscribe after close registered a handler")
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var delivered atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				unsubscribe := hub.Subscribe(func(models.AlertEvent) error {
					delivered.Add(1)
					return nil
				})
				hub.Publish(event("race"))
				unsubscribe()
			}
		}()
	}
	wg.Wait()

	// Exact counts depend on interleaving; the registry just must survive
	// and every publish must have reached at least the publishing
	// goroutine's own subscriber.
	if delivered.Load() < 8*50 {
		t.Errorf("delivered %d events, expected at least %d", delivered.Load(), 8*50)
	}
	if hub.Len() != 0 {
		t.Errorf("expected all subscribers removed, len=%d", hub.Len())
	}
}
