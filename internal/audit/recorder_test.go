package audit

import (
	"context"
	"testing"
	"time"
)

func TestRecorderFillsDefaults(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)

	rec.Record(context.Background(), Entry{
		ActorID:      "user-1",
		Action:       "workflow.action.approve",
		ResourceType: "application",
		ResourceID:   "app-1",
		DurationMs:   12,
	})
	rec.Close()

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if e.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
	if e.Outcome != OutcomeSuccess {
		t.Fatalf("expected SUCCESS default, got %s", e.Outcome)
	}
}

func TestRecorderDrainsOnClose(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, WithQueueSize(4))

	for i := 0; i < 10; i++ {
		rec.Record(context.Background(), Entry{Action: "authz.deny", ResourceType: "role", Outcome: OutcomeFailure})
	}
	rec.Close()

	if got := len(store.Entries()); got != 10 {
		t.Fatalf("expected all 10 entries persisted, got %d", got)
	}
}

func TestMemoryStoreFilter(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	_ = store.Append(context.Background(), Entry{ID: "1", ActorID: "a", ResourceType: "application", Outcome: OutcomeSuccess, Timestamp: now})
	_ = store.Append(context.Background(), Entry{ID: "2", ActorID: "b", ResourceType: "application", Outcome: OutcomeFailure, Timestamp: now})
	_ = store.Append(context.Background(), Entry{ID: "3", ActorID: "a", ResourceType: "role", Outcome: OutcomeFailure, Timestamp: now})

	got, err := store.List(context.Background(), Filter{ActorID: "a", Outcome: OutcomeFailure})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
