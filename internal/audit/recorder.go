package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"parcflow.org/internal/obs"
)

const (
	defaultQueueSize    = 256
	defaultAppendWindow = 5 * time.Second
)

// Recorder appends audit entries without blocking the caller's response path.
// Record enqueues; a background writer persists. An append failure never rolls
// back the operation that triggered it — it is escalated through the
// audit_write_failures_total counter and the error log instead.
//
// Recorder is an injected dependency of the guard and the workflow engine,
// never a process-wide singleton, so tests can pass a fake store.
type Recorder struct {
	store Store
	clock func() time.Time

	queue chan Entry
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.clock = fn
		}
	}
}

// WithQueueSize overrides the internal buffer size.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Entry, n)
		}
	}
}

// NewRecorder constructs a Recorder and starts its writer goroutine.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		clock: time.Now,
		queue: make(chan Entry, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record fills defaults and enqueues the entry. When the queue is full the
// entry is written synchronously so it is durably handed off before the
// triggering response is acknowledged.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.clock().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	select {
	case r.queue <- e:
	default:
		r.append(e)
	}
}

// Close drains the queue and stops the writer. Call during shutdown.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		r.append(e)
	}
}

func (r *Recorder) append(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultAppendWindow)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		obs.AuditWriteFailed()
		line, _ := json.Marshal(map[string]any{
			"ts":    r.clock().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit append failed",
			"error": err.Error(),
			"entry": e,
		})
		obs.Logger().Println(string(line))
	}
}
