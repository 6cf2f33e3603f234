package auth

import (
	"strings"
	"sync"
	"time"
)

// Lockout tracks failed authentication attempts per key (typically the login
// email) and escalates to a temporary denial once the threshold is reached
// within the window.
type Lockout struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	now       func() time.Time
	entries   map[string]*attempts
}

type attempts struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// NewLockout constructs a tracker. A threshold <= 0 disables locking.
func NewLockout(threshold int, window time.Duration) *Lockout {
	return &Lockout{
		threshold: threshold,
		window:    window,
		now:       time.Now,
		entries:   map[string]*attempts{},
	}
}

// Locked reports whether the key is currently denied.
func (l *Lockout) Locked(key string) bool {
	key = normalizeKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries[key]
	if !ok {
		return false
	}
	return l.now().Before(a.lockedUntil)
}

// RecordFailure registers a failed attempt and returns true when the key has
// just crossed the threshold and is now locked.
func (l *Lockout) RecordFailure(key string) bool {
	if l.threshold <= 0 {
		return false
	}
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries[key]
	if !ok || now.Sub(a.windowStart) > l.window {
		a = &attempts{windowStart: now}
		l.entries[key] = a
	}
	a.count++
	if a.count >= l.threshold {
		a.lockedUntil = now.Add(l.window)
		return true
	}
	return false
}

// Reset clears attempt state after a successful authentication.
func (l *Lockout) Reset(key string) {
	key = normalizeKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func normalizeKey(key string) string {
	return strings.TrimSpace(strings.ToLower(key))
}
