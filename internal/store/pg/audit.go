package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"parcflow.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, action, resource_type, resource_id, outcome, duration_ms, ts)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, nullIfEmpty(e.ActorID), e.Action, e.ResourceType, nullIfEmpty(e.ResourceID),
		string(e.Outcome), e.DurationMs, e.Timestamp)
	return err
}

func (s *Store) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		clauses = append(clauses, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if f.ResourceID != "" {
		args = append(args, f.ResourceID)
		clauses = append(clauses, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		clauses = append(clauses, fmt.Sprintf("outcome = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)

	query := `
		select id, actor_id, action, resource_type, resource_id, outcome, duration_ms, ts
		from audit_logs`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += fmt.Sprintf(" order by ts desc limit $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			actorID    sql.NullString
			resourceID sql.NullString
			outcome    string
		)
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.ResourceType, &resourceID, &outcome, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ActorID = actorID.String
		e.ResourceID = resourceID.String
		e.Outcome = audit.Outcome(outcome)
		result = append(result, e)
	}
	return result, rows.Err()
}
