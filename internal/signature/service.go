package signature

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parcflow.org/internal/ids"
)

var (
	ErrInvalidInput = errors.New("signature: invalid input")
	ErrNotFound     = errors.New("signature: not found")
	ErrConflict     = errors.New("signature: resource conflict")

	// ErrCrypto indicates malformed key or certificate material.
	ErrCrypto = errors.New("signature: malformed key material")
)

// Record binds a payload hash to a specific user, application and step.
// Once created it is immutable and owned by its (application, step) pair.
type Record struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	StepID        string    `json:"step_id"`
	UserID        string    `json:"user_id"`
	PayloadHash   string    `json:"payload_hash"`
	SignatureData []byte    `json:"signature_data"`
	SignedAt      time.Time `json:"signed_at"`
	IPAddress     string    `json:"ip_address,omitempty"`
}

// Store is the persistence contract for signature records. Append-only.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Find(ctx context.Context, applicationID, stepID, userID string) (*Record, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*Record, error)
}

// Service creates and verifies signatures. It holds no key or certificate
// state of its own; asymmetric material lives with an external key store.
type Service struct {
	store        Store
	now          func() time.Time
	certValidity time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCertValidityDays overrides the certificate validity window.
func WithCertValidityDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.certValidity = time.Duration(days) * 24 * time.Hour
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("signature store is required")
	}
	s := &Service{
		store:        store,
		now:          time.Now,
		certValidity: 365 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign hashes the canonical payload with SHA-256 and stores the binding.
// The raw private signing material is never stored alongside the record.
func (s *Service) Sign(ctx context.Context, userID, applicationID, stepID string, payload any, ipAddress string) (*Record, error) {
	userID = strings.TrimSpace(userID)
	applicationID = strings.TrimSpace(applicationID)
	stepID = strings.TrimSpace(stepID)
	if userID == "" || applicationID == "" || stepID == "" {
		return nil, fmt.Errorf("%w: user_id, application_id and step_id are required", ErrInvalidInput)
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not serializable", ErrInvalidInput)
	}
	sum := sha256.Sum256(canonical)
	rec := &Record{
		ID:            ids.New(),
		ApplicationID: applicationID,
		StepID:        stepID,
		UserID:        userID,
		PayloadHash:   hex.EncodeToString(sum[:]),
		SignatureData: canonical,
		SignedAt:      s.now().UTC(),
		IPAddress:     strings.TrimSpace(ipAddress),
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Verify recomputes the payload hash and compares it with the record.
// Verification failures are data, not faults: any malformed input yields
// false, never an error.
func (s *Service) Verify(rec *Record, payload any) bool {
	if rec == nil || rec.PayloadHash == "" {
		return false
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(canonical)
	expected, err := hex.DecodeString(rec.PayloadHash)
	if err != nil || len(expected) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(sum[:], expected) == 1
}

// Find returns the signature for the exact (application, step, user) triple,
// or ErrNotFound.
func (s *Service) Find(ctx context.Context, applicationID, stepID, userID string) (*Record, error) {
	return s.store.Find(ctx, applicationID, stepID, userID)
}

// ListByApplication returns the signature audit trail for one application.
func (s *Service) ListByApplication(ctx context.Context, applicationID string) ([]*Record, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, fmt.Errorf("%w: application_id is required", ErrInvalidInput)
	}
	return s.store.ListByApplication(ctx, applicationID)
}

// CanonicalJSON renders a payload deterministically: object keys sorted at
// every level, no insignificant whitespace. Equal payloads always produce
// identical bytes, so hash comparison is well-defined.
func CanonicalJSON(payload any) ([]byte, error) {
	if payload == nil {
		return nil, errors.New("nil payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}
}
