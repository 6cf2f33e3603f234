package notify

import (
	"context"
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := hub.Subscribe(ctx)
	b := hub.Subscribe(ctx)
	if hub.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.SubscriberCount())
	}

	hub.Publish(Event{ApplicationID: "app1", Type: EventStepAdvanced})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.ApplicationID != "app1" || ev.Type != EventStepAdvanced {
				t.Fatalf("unexpected event: %+v", ev)
			}
			if ev.At.IsZero() {
				t.Fatal("event timestamp not set")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := hub.Subscribe(ctx)
	hub.Publish(Event{ApplicationID: "app1", Type: EventCompleted})
	hub.Publish(Event{ApplicationID: "app1", Type: EventCompleted}) // buffer full, dropped

	select {
	case <-slow:
	default:
		t.Fatal("first event missing")
	}
	select {
	case ev := <-slow:
		t.Fatalf("expected second event dropped, got %+v", ev)
	default:
	}
}

func TestHubUnsubscribeOnCancel(t *testing.T) {
	hub := NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for hub.SubscriberCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber not removed after cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, open := <-ch; open {
		t.Fatal("channel left open after cancel")
	}
}
