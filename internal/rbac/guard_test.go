package rbac

import (
	"context"
	"testing"
	"time"

	"parcflow.org/internal/audit"
)

func newTestGuard(t *testing.T) (*Guard, *Registry, *audit.MemoryStore) {
	t.Helper()
	reg := newTestRegistry(t)
	sink := audit.NewMemoryStore()
	recorder := audit.NewRecorder(sink)
	t.Cleanup(recorder.Close)
	guard, err := NewGuard(reg, recorder)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return guard, reg, sink
}

func TestAuthorizeRoleRequirement(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	principal := Principal{UserID: "u1", Roles: []string{"Patrimoine"}}

	if d := guard.Authorize(context.Background(), principal, AnyRole("Patrimoine", "DCRTCT")); !d.Allowed {
		t.Fatalf("expected allow, got %v", d)
	}
	if d := guard.Authorize(context.Background(), principal, AnyRole("DCRTCT")); d.Allowed {
		t.Fatal("expected deny")
	}
	// Case-sensitive matching.
	if d := guard.Authorize(context.Background(), principal, AnyRole("patrimoine")); d.Allowed {
		t.Fatal("expected deny for case mismatch")
	}
}

func TestAuthorizePermissionReResolvesRegistry(t *testing.T) {
	guard, reg, _ := newTestGuard(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "Patrimoine", "", []string{"vehicles.read"}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	principal := Principal{UserID: "u1", Roles: []string{"Patrimoine"}}

	if d := guard.Authorize(ctx, principal, AnyPermission("vehicles.read")); !d.Allowed {
		t.Fatalf("expected allow, got %v", d)
	}
	// A principal holding only Patrimoine is denied vehicles.write.
	if d := guard.Authorize(ctx, principal, AnyPermission("vehicles.write")); d.Allowed {
		t.Fatal("expected deny for missing permission")
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	owner := Principal{UserID: "u1"}
	stranger := Principal{UserID: "u2"}
	admin := Principal{UserID: "u3", Roles: []string{SystemRoleName}}

	if d := guard.Authorize(ctx, owner, OwnerOf("u1")); !d.Allowed {
		t.Fatalf("owner denied: %v", d)
	}
	if d := guard.Authorize(ctx, stranger, OwnerOf("u1")); d.Allowed {
		t.Fatal("stranger allowed")
	}
	if d := guard.Authorize(ctx, admin, OwnerOf("u1")); !d.Allowed {
		t.Fatalf("system admin denied: %v", d)
	}
}

func TestDenialsAreAudited(t *testing.T) {
	guard, _, sink := newTestGuard(t)
	ctx := context.Background()

	principal := Principal{UserID: "u9", Roles: []string{"Patrimoine"}}
	guard.Authorize(ctx, principal, AnyRole("DCRTCT"))
	guard.Authorize(ctx, principal, AnyRole("Patrimoine")) // allow, not audited by the guard

	deadline := waitForEntries(t, sink, 1)
	if deadline[0].Action != "authz.deny" {
		t.Fatalf("unexpected action: %s", deadline[0].Action)
	}
	if deadline[0].Outcome != audit.OutcomeFailure {
		t.Fatalf("unexpected outcome: %s", deadline[0].Outcome)
	}
	if deadline[0].ActorID != "u9" {
		t.Fatalf("unexpected actor: %s", deadline[0].ActorID)
	}
}

// waitForEntries polls the sink until the asynchronous recorder has flushed.
func waitForEntries(t *testing.T, sink *audit.MemoryStore, n int) []audit.Entry {
	t.Helper()
	for i := 0; i < 100; i++ {
		entries := sink.Entries()
		if len(entries) >= n {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit entries", n)
	return nil
}
