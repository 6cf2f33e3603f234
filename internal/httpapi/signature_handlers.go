package httpapi

import (
	"net/http"
	"strconv"

	"parcflow.org/internal/audit"
	"parcflow.org/internal/signature"
)

type issueCertificateRequest struct {
	CommonName string `json:"common_name"`
	Country    string `json:"country"`
	OrgUnit    string `json:"org_unit"`
}

// handleCertificates issues a self-signed signing certificate for the
// authenticated principal. The private key is returned once and never stored.
func (a *API) handleCertificates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req issueCertificateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	cert, err := a.signatures.IssueCertificate(p.UserID, signature.Subject{
		CommonName: req.CommonName,
		Country:    req.Country,
		OrgUnit:    req.OrgUnit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "signature.certificate.issue", "certificate", p.UserID)
	writeJSON(w, http.StatusCreated, cert)
}

// handleAuditLog exposes the audit trail to system administrators.
func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireSystemAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		ActorID:      q.Get("actor_id"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Outcome:      audit.Outcome(q.Get("outcome")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	entries, err := a.auditLog.List(r.Context(), filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
