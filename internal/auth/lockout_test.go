package auth

import (
	"testing"
	"time"
)

func TestLockoutThreshold(t *testing.T) {
	l := NewLockout(3, time.Minute)

	if l.Locked("user@example.com") {
		t.Fatal("fresh key should not be locked")
	}
	if l.RecordFailure("user@example.com") {
		t.Fatal("first failure should not lock")
	}
	if l.RecordFailure("user@example.com") {
		t.Fatal("second failure should not lock")
	}
	if !l.RecordFailure("user@example.com") {
		t.Fatal("third failure should lock")
	}
	if !l.Locked("user@example.com") {
		t.Fatal("expected key to be locked")
	}
	// Key comparison is case-insensitive: emails are normalized on login.
	if !l.Locked("USER@example.com") {
		t.Fatal("expected normalized key to be locked")
	}
	if l.Locked("other@example.com") {
		t.Fatal("unrelated key locked")
	}
}

func TestLockoutWindowExpiry(t *testing.T) {
	l := NewLockout(2, time.Minute)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	l.RecordFailure("a@b.c")
	if l.RecordFailure("a@b.c") != true {
		t.Fatal("expected lock at threshold")
	}
	current = current.Add(2 * time.Minute)
	if l.Locked("a@b.c") {
		t.Fatal("lock should expire with the window")
	}
	// Stale window restarts the count.
	if l.RecordFailure("a@b.c") {
		t.Fatal("count should have been reset")
	}
}

func TestLockoutReset(t *testing.T) {
	l := NewLockout(1, time.Minute)
	l.RecordFailure("a@b.c")
	if !l.Locked("a@b.c") {
		t.Fatal("expected locked")
	}
	l.Reset("a@b.c")
	if l.Locked("a@b.c") {
		t.Fatal("expected reset to clear the lock")
	}
}
