package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"parcflow.org/internal/workflow"
)

var _ workflow.Store = (*Store)(nil)

func (s *Store) CreateTemplate(ctx context.Context, t *workflow.Template) error {
	steps, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into workflow_templates (id, name, steps, created_at)
		values ($1, $2, $3, $4)
	`, t.ID, t.Name, steps, t.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: template %s already exists", workflow.ErrInvalidInput, t.ID)
		}
		return err
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*workflow.Template, error) {
	t := &workflow.Template{}
	var steps []byte
	err := s.db.QueryRowContext(ctx, `
		select id, name, steps, created_at
		from workflow_templates
		where id = $1
	`, id).Scan(&t.ID, &t.Name, &steps, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: template %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &t.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*workflow.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, steps, created_at
		from workflow_templates
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*workflow.Template
	for rows.Next() {
		t := &workflow.Template{}
		var steps []byte
		if err := rows.Scan(&t.ID, &t.Name, &steps, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &t.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) CreateApplication(ctx context.Context, app *workflow.Application) error {
	data, err := json.Marshal(app.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into applications (id, template_id, current_step_id, status, created_by, data, version, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, app.ID, app.TemplateID, app.CurrentStepID, string(app.Status), app.CreatedBy, data, app.Version, app.CreatedAt, app.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: template %s", workflow.ErrTemplateNotFound, app.TemplateID)
		}
		return err
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*workflow.Application, error) {
	return scanApplication(s.db.QueryRowContext(ctx, `
		select id, template_id, current_step_id, status, created_by, data, version, created_at, updated_at
		from applications
		where id = $1
	`, id))
}

func (s *Store) ListApplications(ctx context.Context, filter workflow.ApplicationFilter) ([]*workflow.Application, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `
		select id, template_id, current_step_id, status, created_by, data, version, created_at, updated_at
		from applications`
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	query += " order by created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*workflow.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

// ApplyTransition moves the application and appends the history entry in
// one transaction. The version predicate makes racing transitions lose
// cleanly instead of double-applying.
func (s *Store) ApplyTransition(ctx context.Context, t workflow.Transition) (*workflow.Application, error) {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update applications
		set status = $3, current_step_id = $4, data = $5, version = version + 1, updated_at = $6
		where id = $1 and version = $2
	`, t.ApplicationID, t.ExpectedVersion, string(t.NewStatus), t.NewStepID, data, t.Entry.Timestamp)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			select exists(select 1 from applications where id = $1)
		`, t.ApplicationID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: application %s", workflow.ErrNotFound, t.ApplicationID)
		}
		return nil, fmt.Errorf("%w: application %s moved past version %d",
			workflow.ErrConcurrentModification, t.ApplicationID, t.ExpectedVersion)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into application_history (id, application_id, step_id, actor_id, action, comment, ts)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, t.Entry.ID, t.Entry.ApplicationID, nullIfEmpty(t.Entry.StepID), t.Entry.ActorID, t.Entry.Action,
		nullIfEmpty(t.Entry.Comment), t.Entry.Timestamp); err != nil {
		return nil, err
	}

	app, err := scanApplication(tx.QueryRowContext(ctx, `
		select id, template_id, current_step_id, status, created_by, data, version, created_at, updated_at
		from applications
		where id = $1
	`, t.ApplicationID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Store) History(ctx context.Context, applicationID string) ([]workflow.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, application_id, step_id, actor_id, action, comment, ts
		from application_history
		where application_id = $1
		order by ts, id
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []workflow.HistoryEntry
	for rows.Next() {
		var (
			e       workflow.HistoryEntry
			stepID  sql.NullString
			comment sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ApplicationID, &stepID, &e.ActorID, &e.Action, &comment, &e.Timestamp); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.Comment = comment.String
		result = append(result, e)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*workflow.Application, error) {
	app := &workflow.Application{}
	var (
		stepID sql.NullString
		status string
		data   []byte
	)
	err := row.Scan(&app.ID, &app.TemplateID, &stepID, &status, &app.CreatedBy, &data, &app.Version, &app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application", workflow.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if stepID.Valid {
		app.CurrentStepID = &stepID.String
	}
	app.Status = workflow.Status(status)
	app.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &app.Data); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	return app, nil
}
