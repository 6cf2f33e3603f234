package audit

import (
	"context"
	"time"
)

// Outcome classifies whether the recorded operation took effect.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Entry is an immutable record of an authorization decision or workflow
// action. Entries are append-only: never updated, never deleted.
type Entry struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ActorID      string
	ResourceType string
	ResourceID   string
	Outcome      Outcome
	Limit        int
}

// Store is the persistence contract for audit entries. It is append-only by
// design; no update or delete methods exist.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Timer measures operation duration for audit entries.
type Timer struct {
	start time.Time
	now   func() time.Time
}

// StartTimer begins measuring.
func StartTimer() *Timer {
	return &Timer{start: time.Now(), now: time.Now}
}

// ElapsedMs returns whole milliseconds since the timer started.
func (t *Timer) ElapsedMs() int64 {
	return t.now().Sub(t.start).Milliseconds()
}
