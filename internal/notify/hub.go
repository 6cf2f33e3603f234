package notify

import (
	"context"
	"sync"
	"time"
)

// Event is one workflow notification fan-out unit.
type Event struct {
	ApplicationID string    `json:"application_id"`
	Type          string    `json:"type"`
	StepID        string    `json:"step_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Recipients    []string  `json:"recipients,omitempty"`
	At            time.Time `json:"at"`
}

// Event types published by the workflow engine.
const (
	EventStepAdvanced     = "workflow.step_advanced"
	EventCompleted        = "workflow.completed"
	EventChangesRequested = "workflow.changes_requested"
)

// Hub fans events out to live subscribers. Delivery is best-effort: a
// subscriber that cannot keep up loses events rather than blocking the
// publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	buf  int
}

// NewHub creates a Hub whose subscriber channels buffer up to buf events.
func NewHub(buf int) *Hub {
	if buf <= 0 {
		buf = 16
	}
	return &Hub{subs: map[chan Event]struct{}{}, buf: buf}
}

// Subscribe registers a new subscriber. The channel is closed and removed
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, h.buf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Publish sends the event to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
