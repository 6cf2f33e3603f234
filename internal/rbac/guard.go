package rbac

import (
	"context"
	"fmt"

	"parcflow.org/internal/audit"
	"parcflow.org/internal/obs"
)

// Decision is the guard's verdict on one requirement.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

// Deny builds a negative decision.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Guard is the single decision point consulted before every protected
// operation. Every denial is recorded with outcome FAILURE before the caller
// surfaces an error; allows on mutating operations are recorded by the
// caller after the mutation takes effect, so audit entries stay tied to
// actual effect.
type Guard struct {
	registry *Registry
	recorder *audit.Recorder
}

// NewGuard wires the guard to its registry and audit sink. Both are required.
func NewGuard(registry *Registry, recorder *audit.Recorder) (*Guard, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidInput)
	}
	if recorder == nil {
		return nil, fmt.Errorf("%w: audit recorder is required", ErrInvalidInput)
	}
	return &Guard{registry: registry, recorder: recorder}, nil
}

// Authorize evaluates one requirement against the principal. Permission
// requirements re-resolve the principal's roles against the registry within
// this call, so a revoked role is never partially honored.
func (g *Guard) Authorize(ctx context.Context, principal Principal, req Requirement) Decision {
	timer := audit.StartTimer()
	decision := g.evaluate(ctx, principal, req)
	if !decision.Allowed {
		obs.AuthzDenied()
		g.recorder.Record(ctx, audit.Entry{
			ActorID:      principal.UserID,
			Action:       "authz.deny",
			ResourceType: req.Kind.String(),
			ResourceID:   req.Describe(),
			Outcome:      audit.OutcomeFailure,
			DurationMs:   timer.ElapsedMs(),
		})
	}
	return decision
}

func (g *Guard) evaluate(ctx context.Context, principal Principal, req Requirement) Decision {
	switch req.Kind {
	case KindRole:
		for _, name := range req.Roles {
			if principal.HasRole(name) {
				return Allow
			}
		}
		return Deny(fmt.Sprintf("requires one of roles %v", req.Roles))

	case KindPermission:
		resolved, err := g.registry.ResolvePermissions(ctx, principal.Roles)
		if err != nil {
			return Deny("permission resolution failed")
		}
		held := make(map[string]struct{}, len(resolved))
		for _, p := range resolved {
			held[p] = struct{}{}
		}
		for _, p := range req.Permissions {
			if _, ok := held[p]; ok {
				return Allow
			}
		}
		return Deny(fmt.Sprintf("requires one of permissions %v", req.Permissions))

	case KindOwnership:
		if principal.UserID != "" && principal.UserID == req.OwnerID {
			return Allow
		}
		if principal.IsSystemAdmin() {
			return Allow
		}
		return Deny("requires resource ownership or the system role")
	}
	return Deny("unknown requirement kind")
}
