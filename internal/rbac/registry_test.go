package rbac

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := reg.EnsureSystemRole(context.Background()); err != nil {
		t.Fatalf("EnsureSystemRole: %v", err)
	}
	return reg
}

func TestResolvePermissionsExactMatch(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	role, err := reg.CreateRole(ctx, "Patrimoine", "fleet custodian", []string{"vehicles.read", "vehicles.read", "documents.manage"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	perms, err := reg.ResolvePermissions(ctx, []string{role.Name})
	if err != nil {
		t.Fatalf("ResolvePermissions: %v", err)
	}
	// No implicit inheritance: exactly the role's own set, deduplicated.
	if len(perms) != 2 || perms[0] != "documents.manage" || perms[1] != "vehicles.read" {
		t.Fatalf("unexpected permissions: %v", perms)
	}
}

func TestResolvePermissionsIgnoresUnknownNames(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "DCRTCT", "", []string{"applications.approve"}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	perms, err := reg.ResolvePermissions(ctx, []string{"DCRTCT", "GhostRole"})
	if err != nil {
		t.Fatalf("ResolvePermissions: %v", err)
	}
	if len(perms) != 1 || perms[0] != "applications.approve" {
		t.Fatalf("unexpected permissions: %v", perms)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "  ", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := reg.CreateRole(ctx, SystemRoleName, "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for reserved name, got %v", err)
	}
	if _, err := reg.CreateRole(ctx, "Patrimoine", "", nil); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := reg.CreateRole(ctx, "Patrimoine", "", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}
}

func TestSystemRoleIsImmutable(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	system, err := reg.store.FindRoleByName(ctx, SystemRoleName)
	if err != nil {
		t.Fatalf("FindRoleByName: %v", err)
	}

	desc := "renamed"
	if _, err := reg.UpdateRole(ctx, system.ID, RoleUpdate{Description: &desc}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on update, got %v", err)
	}
	if err := reg.DeleteRole(ctx, system.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
}

func TestDeleteRoleBlockedWhileAssigned(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	role, err := reg.CreateRole(ctx, "Patrimoine", "", []string{"vehicles.read"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	user, err := reg.CreateUser(ctx, "agent@pca.tn", "s3cret", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := reg.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	if err := reg.DeleteRole(ctx, role.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while assigned, got %v", err)
	}
	if err := reg.UnassignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("UnassignRole: %v", err)
	}
	if err := reg.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole after unassign: %v", err)
	}
}

func TestPrincipalIsBuiltFresh(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	role, err := reg.CreateRole(ctx, "Patrimoine", "", []string{"vehicles.read"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	user, err := reg.CreateUser(ctx, "agent@pca.tn", "s3cret", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := reg.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	p, err := reg.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if !p.HasRole("Patrimoine") || !p.HasPermission("vehicles.read") {
		t.Fatalf("unexpected principal: %+v", p)
	}

	// Revoking the role must be visible on the next build.
	if err := reg.UnassignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("UnassignRole: %v", err)
	}
	p, err = reg.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if p.HasRole("Patrimoine") || p.HasPermission("vehicles.read") {
		t.Fatalf("revoked role still present: %+v", p)
	}
}
