package signature

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node development
// runs. Not intended for production use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.ApplicationID == rec.ApplicationID &&
			existing.StepID == rec.StepID &&
			existing.UserID == rec.UserID {
			return fmt.Errorf("%w: step already signed by user %s", ErrConflict, rec.UserID)
		}
	}
	clone := *rec
	clone.SignatureData = append([]byte(nil), rec.SignatureData...)
	s.records = append(s.records, &clone)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, applicationID, stepID, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ApplicationID == applicationID && rec.StepID == stepID && rec.UserID == userID {
			clone := *rec
			clone.SignatureData = append([]byte(nil), rec.SignatureData...)
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: signature for application %s step %s", ErrNotFound, applicationID, stepID)
}

func (s *MemoryStore) ListByApplication(ctx context.Context, applicationID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.ApplicationID == applicationID {
			clone := *rec
			clone.SignatureData = append([]byte(nil), rec.SignatureData...)
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedAt.Before(out[j].SignedAt) })
	return out, nil
}
