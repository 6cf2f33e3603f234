package signature

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSignVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	payload := map[string]any{
		"plate":   "215 TUN 4821",
		"mileage": 48210,
		"driver":  map[string]any{"name": "Ben Salah", "badge": "A-17"},
	}
	rec, err := svc.Sign(ctx, "u1", "app1", "step1", payload, "10.0.0.4")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if rec.PayloadHash == "" || rec.ID == "" {
		t.Fatalf("incomplete record: %+v", rec)
	}

	if !svc.Verify(rec, payload) {
		t.Fatal("verification failed for untouched payload")
	}

	// Key order must not matter.
	reordered := map[string]any{
		"driver":  map[string]any{"badge": "A-17", "name": "Ben Salah"},
		"mileage": 48210,
		"plate":   "215 TUN 4821",
	}
	if !svc.Verify(rec, reordered) {
		t.Fatal("verification failed for reordered payload")
	}
}

func TestVerifyDetectsMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	payload := map[string]any{"plate": "215 TUN 4821"}
	rec, err := svc.Sign(ctx, "u1", "app1", "step1", payload, "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mutated := map[string]any{"plate": "215 TUN 4822"}
	if svc.Verify(rec, mutated) {
		t.Fatal("verification accepted a mutated payload")
	}
	if svc.Verify(nil, payload) {
		t.Fatal("verification accepted nil record")
	}
	tampered := *rec
	tampered.PayloadHash = "not-hex"
	if svc.Verify(&tampered, payload) {
		t.Fatal("verification accepted malformed hash")
	}
}

func TestSignDuplicateStepConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Sign(ctx, "u1", "app1", "step1", map[string]any{"a": 1}, ""); err != nil {
		t.Fatalf("first Sign: %v", err)
	}
	if _, err := svc.Sign(ctx, "u1", "app1", "step1", map[string]any{"a": 2}, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Same user on a different step is fine.
	if _, err := svc.Sign(ctx, "u1", "app1", "step2", map[string]any{"a": 3}, ""); err != nil {
		t.Fatalf("Sign on second step: %v", err)
	}
}

func TestSignValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Sign(ctx, "", "app1", "step1", map[string]any{"a": 1}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Sign(ctx, "u1", "app1", "step1", func() {}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unserializable payload, got %v", err)
	}
}

func TestListByApplicationOrderedBySignedAt(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, err := NewService(NewMemoryStore(), WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Sign(ctx, "u1", "app1", "step1", map[string]any{"a": 1}, ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := svc.Sign(ctx, "u2", "app1", "step2", map[string]any{"a": 2}, ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := svc.Sign(ctx, "u1", "app2", "step1", map[string]any{"a": 3}, ""); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recs, err := svc.ListByApplication(ctx, "app1")
	if err != nil {
		t.Fatalf("ListByApplication: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].StepID != "step1" || recs[1].StepID != "step2" {
		t.Fatalf("records out of order: %s then %s", recs[0].StepID, recs[1].StepID)
	}
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	a := map[string]any{"b": 2, "a": []any{map[string]any{"y": 1, "x": 2}}}
	b := map[string]any{"a": []any{map[string]any{"x": 2, "y": 1}}, "b": 2}

	ca, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical forms differ: %s vs %s", ca, cb)
	}
	if string(ca) != `{"a":[{"x":2,"y":1}],"b":2}` {
		t.Fatalf("unexpected canonical form: %s", ca)
	}
}
