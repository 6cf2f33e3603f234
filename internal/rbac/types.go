package rbac

import "time"

// SystemRoleName is the only hardcoded role. The role carrying it is
// immutable and undeletable; everything else is defined at runtime.
const SystemRoleName = "SYSTEM_ADMIN"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Role groups permissions under a unique, case-sensitive name.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RoleUpdate carries optional field changes for UpdateRole.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions []string
}

// User is an account that can authenticate and hold role assignments.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is an authenticated actor with roles and permissions resolved
// for the duration of one request. It is built fresh per request from
// persisted assignments and never cached across requests.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions map[string]struct{}
}

// HasRole reports exact-string, case-sensitive role membership.
func (p Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasPermission reports exact-string permission membership.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// IsSystemAdmin reports whether the principal holds the system role.
func (p Principal) IsSystemAdmin() bool {
	return p.HasRole(SystemRoleName)
}
