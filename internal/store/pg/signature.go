package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parcflow.org/internal/signature"
)

var _ signature.Store = (*SignatureStore)(nil)

// SignatureStore exposes the signature.Store contract on top of Store.
// A separate type is needed because audit.Store already claims the
// Append method name on Store with a different signature.
type SignatureStore struct{ *Store }

// Signatures returns the signature.Store view of this Store.
func (s *Store) Signatures() *SignatureStore { return &SignatureStore{s} }

func (s *SignatureStore) Append(ctx context.Context, rec *signature.Record) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into signatures (id, application_id, step_id, user_id, payload_hash, signature_data, signed_at, ip_address)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.ApplicationID, rec.StepID, rec.UserID, rec.PayloadHash, rec.SignatureData,
		rec.SignedAt, nullIfEmpty(rec.IPAddress)); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: step already signed by user %s", signature.ErrConflict, rec.UserID)
		}
		return err
	}
	return nil
}

func (s *SignatureStore) Find(ctx context.Context, applicationID, stepID, userID string) (*signature.Record, error) {
	rec := &signature.Record{}
	var ip sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, application_id, step_id, user_id, payload_hash, signature_data, signed_at, ip_address
		from signatures
		where application_id = $1 and step_id = $2 and user_id = $3
	`, applicationID, stepID, userID).Scan(&rec.ID, &rec.ApplicationID, &rec.StepID, &rec.UserID,
		&rec.PayloadHash, &rec.SignatureData, &rec.SignedAt, &ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: signature for application %s step %s", signature.ErrNotFound, applicationID, stepID)
	}
	if err != nil {
		return nil, err
	}
	rec.IPAddress = ip.String
	return rec, nil
}

func (s *SignatureStore) ListByApplication(ctx context.Context, applicationID string) ([]*signature.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, application_id, step_id, user_id, payload_hash, signature_data, signed_at, ip_address
		from signatures
		where application_id = $1
		order by signed_at
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*signature.Record{}
	for rows.Next() {
		rec := &signature.Record{}
		var ip sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ApplicationID, &rec.StepID, &rec.UserID,
			&rec.PayloadHash, &rec.SignatureData, &rec.SignedAt, &ip); err != nil {
			return nil, err
		}
		rec.IPAddress = ip.String
		result = append(result, rec)
	}
	return result, rows.Err()
}
