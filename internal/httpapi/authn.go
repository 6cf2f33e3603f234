package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"parcflow.org/internal/auth"
	"parcflow.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p rbac.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (rbac.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(rbac.Principal)
	return p, ok
}

// withAuth authenticates bearer tokens and rebuilds the principal from the
// registry on every request, so stale role claims are never honored beyond
// the single request.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		principal, err := a.registry.PrincipalFromClaims(r.Context(), claims.Subject, claims.Roles)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), principal.UserID, principal.Roles)
		ctx = contextWithPrincipal(ctx, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePrincipal fetches the authenticated principal or writes a 401.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return rbac.Principal{}, false
	}
	return p, true
}

// requireSystemAdmin authorizes through the guard so every denial lands in
// the audit trail.
func (a *API) requireSystemAdmin(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return rbac.Principal{}, false
	}
	if d := a.guard.Authorize(r.Context(), p, rbac.AnyRole(rbac.SystemRoleName)); !d.Allowed {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return rbac.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
