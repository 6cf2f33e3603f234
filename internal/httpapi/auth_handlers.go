package httpapi

import (
	"net/http"
	"strings"
	"time"

	"parcflow.org/internal/audit"
	"parcflow.org/internal/auth"
	"parcflow.org/internal/rbac"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	if a.lockout != nil && a.lockout.Locked(req.Email) {
		a.auditLogin(r, req.Email, audit.OutcomeFailure)
		writeError(w, r, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	user, err := a.registry.FindUserByEmail(r.Context(), req.Email)
	if err != nil || auth.VerifyPassword(user.PasswordHash, req.Password) != nil {
		if a.lockout != nil {
			a.lockout.RecordFailure(req.Email)
		}
		a.auditLogin(r, req.Email, audit.OutcomeFailure)
		// One message for both unknown account and bad password.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.Status != rbac.UserStatusActive {
		a.auditLogin(r, user.ID, audit.OutcomeFailure)
		writeError(w, r, http.StatusForbidden, "account disabled")
		return
	}

	principal, err := a.registry.Principal(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	token, err := auth.GenerateToken(user.ID, principal.Roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	if a.lockout != nil {
		a.lockout.Reset(req.Email)
	}
	a.auditLogin(r, user.ID, audit.OutcomeSuccess)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(a.tokenTTL / time.Second),
	})
}

func (a *API) auditLogin(r *http.Request, actorID string, outcome audit.Outcome) {
	if a.recorder == nil {
		return
	}
	a.recorder.Record(r.Context(), audit.Entry{
		ActorID:      actorID,
		Action:       "auth.login",
		ResourceType: "session",
		Outcome:      outcome,
	})
}
