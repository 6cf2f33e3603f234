package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parcflow.org/internal/rbac"
)

var _ rbac.Store = (*Store)(nil)

func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into roles (id, name, description, is_system_role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.IsSystemRole, role.CreatedAt, role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: role name %s already exists", rbac.ErrConflict, role.Name)
		}
		return err
	}
	if err := replacePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	return s.roleBy(ctx, `where r.id = $1`, id)
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	return s.roleBy(ctx, `where r.name = $1`, name)
}

func (s *Store) roleBy(ctx context.Context, where string, arg any) (*rbac.Role, error) {
	role := &rbac.Role{Permissions: []string{}}
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select r.id, r.name, r.description, r.is_system_role, r.created_at, r.updated_at
		from roles r `+where,
		arg).Scan(&role.ID, &role.Name, &desc, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: role %v", rbac.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	role.Description = desc.String
	if role.Permissions, err = s.permissionsFor(ctx, role.ID); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_system_role, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*rbac.Role
	for rows.Next() {
		role := &rbac.Role{Permissions: []string{}}
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Description = desc.String
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range result {
		if role.Permissions, err = s.permissionsFor(ctx, role.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update roles set name = $2, description = $3, updated_at = $4
		where id = $1
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: role name %s already exists", rbac.ErrConflict, role.Name)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: role %s", rbac.ErrNotFound, role.ID)
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, role.ID); err != nil {
		return err
	}
	if err := replacePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role %s is still referenced", rbac.ErrConflict, id)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: role %s", rbac.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ResolveRoles(ctx context.Context, names []string) ([]*rbac.Role, error) {
	var result []*rbac.Role
	for _, name := range names {
		role, err := s.FindRoleByName(ctx, name)
		if errors.Is(err, rbac.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, u *rbac.User) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.Status, u.CreatedAt, u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: email %s already registered", rbac.ErrConflict, u.Email)
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	return s.userBy(ctx, `where id = $1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*rbac.User, error) {
	return s.userBy(ctx, `where email = $1`, email)
}

func (s *Store) userBy(ctx context.Context, where string, arg any) (*rbac.User, error) {
	u := &rbac.User{}
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, created_at, updated_at
		from users `+where,
		arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %v", rbac.ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id) values ($1, $2)
	`, userID, roleID); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: role already assigned", rbac.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: user or role", rbac.ErrNotFound)
			}
		}
		return err
	}
	return nil
}

func (s *Store) UnassignRole(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: assignment", rbac.ErrNotFound)
	}
	return nil
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]*rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.is_system_role, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*rbac.Role
	for rows.Next() {
		role := &rbac.Role{Permissions: []string{}}
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Description = desc.String
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range result {
		if role.Permissions, err = s.permissionsFor(ctx, role.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) AssignmentCount(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from user_roles where role_id = $1
	`, roleID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) permissionsFor(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select permission from role_permissions where role_id = $1 order by permission
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func replacePermissions(ctx context.Context, tx *sql.Tx, roleID string, perms []string) error {
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission) values ($1, $2)
			on conflict do nothing
		`, roleID, p); err != nil {
			return err
		}
	}
	return nil
}
