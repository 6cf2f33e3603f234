package rbac

import "context"

// Store describes persistence operations required by the registry. Role and
// permission reads inside one call observe a single consistent snapshot.
type Store interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id string) error

	// ResolveRoles returns the roles matching the given names. Unknown names
	// are skipped, not an error: stale assignments must not break resolution.
	ResolveRoles(ctx context.Context, names []string) ([]*Role, error)

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]*Role, error)
	AssignmentCount(ctx context.Context, roleID string) (int, error)
}
