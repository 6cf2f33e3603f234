package rbac

import "strings"

// RequirementKind is the closed set of authorization checks. Scattered
// string comparisons are not allowed; every protected operation states its
// requirement as one of these and the guard evaluates it in one place.
type RequirementKind int

const (
	KindRole RequirementKind = iota
	KindPermission
	KindOwnership
)

func (k RequirementKind) String() string {
	switch k {
	case KindRole:
		return "role"
	case KindPermission:
		return "permission"
	case KindOwnership:
		return "ownership"
	}
	return "unknown"
}

// Requirement is what a protected operation demands of a principal.
type Requirement struct {
	Kind RequirementKind

	// Roles: allow iff the principal holds at least one (exact string match).
	Roles []string

	// Permissions: allow iff the resolved permission set intersects.
	Permissions []string

	// OwnerID: allow iff the principal owns the resource or holds the
	// system role.
	OwnerID string
}

// AnyRole requires at least one of the named roles.
func AnyRole(names ...string) Requirement {
	return Requirement{Kind: KindRole, Roles: names}
}

// AnyPermission requires at least one of the named permissions.
func AnyPermission(keys ...string) Requirement {
	return Requirement{Kind: KindPermission, Permissions: keys}
}

// OwnerOf requires ownership of the resource (or the system role).
func OwnerOf(resourceOwnerID string) Requirement {
	return Requirement{Kind: KindOwnership, OwnerID: strings.TrimSpace(resourceOwnerID)}
}

// Describe renders the requirement for audit entries and deny reasons.
func (r Requirement) Describe() string {
	switch r.Kind {
	case KindRole:
		return "role:" + strings.Join(r.Roles, ",")
	case KindPermission:
		return "permission:" + strings.Join(r.Permissions, ",")
	case KindOwnership:
		return "ownership:" + r.OwnerID
	}
	return "unknown"
}
