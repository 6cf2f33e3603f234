package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parcflow.org/internal/auth"
	"parcflow.org/internal/ids"
)

// Registry resolves role names to permission sets and manages the dynamic
// role catalog. Apart from the reserved system role every role is runtime
// data, created and edited only by SYSTEM_ADMIN principals (enforced by the
// caller through the guard).
type Registry struct {
	store Store
	now   func() time.Time
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EnsureSystemRole creates the immutable SYSTEM_ADMIN role if absent.
// Idempotent; called at startup.
func (r *Registry) EnsureSystemRole(ctx context.Context) error {
	_, err := r.store.FindRoleByName(ctx, SystemRoleName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	now := r.now().UTC()
	role := &Role{
		ID:           ids.New(),
		Name:         SystemRoleName,
		Description:  "System administrator with full access",
		IsSystemRole: true,
		Permissions:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateRole(ctx, role); err != nil {
		// Lost a race with a concurrent boot; the role exists either way.
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}

// ResolvePermissions unions the permissions of all matching roles. Unknown
// role names are ignored to tolerate stale assignments. The result is sorted
// and deduplicated; it is never nil.
func (r *Registry) ResolvePermissions(ctx context.Context, roleNames []string) ([]string, error) {
	roles, err := r.store.ResolveRoles(ctx, roleNames)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// CreateRole registers a new dynamic role.
func (r *Registry) CreateRole(ctx context.Context, name, description string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if name == SystemRoleName {
		return nil, fmt.Errorf("%w: %s is reserved", ErrInvalidInput, SystemRoleName)
	}
	now := r.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: dedupePermissions(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole loads one role.
func (r *Registry) GetRole(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return r.store.GetRole(ctx, id)
}

// ListRoles returns the full catalog.
func (r *Registry) ListRoles(ctx context.Context) ([]*Role, error) {
	return r.store.ListRoles(ctx)
}

// UpdateRole edits a dynamic role. The system role is immutable.
func (r *Registry) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := r.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystemRole {
		return nil, fmt.Errorf("%w: the system role cannot be edited", ErrForbidden)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if name == SystemRoleName {
			return nil, fmt.Errorf("%w: %s is reserved", ErrInvalidInput, SystemRoleName)
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		role.Permissions = dedupePermissions(upd.Permissions)
	}
	role.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a dynamic role. Fails while any principal still holds
// the role; the system role can never be deleted.
func (r *Registry) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := r.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return fmt.Errorf("%w: the system role cannot be deleted", ErrForbidden)
	}
	count, err := r.store.AssignmentCount(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role %s is still assigned to %d user(s)", ErrConflict, role.Name, count)
	}
	return r.store.DeleteRole(ctx, id)
}

// CreateUser registers an account with a bcrypt password hash.
func (r *Registry) CreateUser(ctx context.Context, email, password, status string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = UserStatusActive
	}
	if status != UserStatusActive && status != UserStatusDisabled {
		return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	u := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindUserByEmail loads an account for authentication.
func (r *Registry) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return r.store.FindUserByEmail(ctx, email)
}

// AssignRole grants a role to a user.
func (r *Registry) AssignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := r.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if _, err := r.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	return r.store.AssignRole(ctx, userID, roleID)
}

// UnassignRole revokes a role from a user.
func (r *Registry) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return r.store.UnassignRole(ctx, userID, roleID)
}

// Principal builds a fresh principal from persisted assignments. Role and
// permission state is read once per call; nothing is cached across requests.
func (r *Registry) Principal(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if _, err := r.store.GetUser(ctx, userID); err != nil {
		return Principal{}, err
	}
	roles, err := r.store.RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	names := make([]string, 0, len(roles))
	perms := make(map[string]struct{})
	for _, role := range roles {
		names = append(names, role.Name)
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}
	return Principal{UserID: userID, Roles: names, Permissions: perms}, nil
}

// PrincipalFromClaims rebuilds a principal from token role claims, re-reading
// the registry so revoked permissions are never honored past one request.
func (r *Registry) PrincipalFromClaims(ctx context.Context, userID string, roleNames []string) (Principal, error) {
	roles, err := r.store.ResolveRoles(ctx, roleNames)
	if err != nil {
		return Principal{}, err
	}
	names := make([]string, 0, len(roles))
	perms := make(map[string]struct{})
	for _, role := range roles {
		names = append(names, role.Name)
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}
	return Principal{UserID: strings.TrimSpace(userID), Roles: names, Permissions: perms}, nil
}

func dedupePermissions(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
