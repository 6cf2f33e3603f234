package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"parcflow.org/internal/workflow"
)

type createTemplateRequest struct {
	Name  string          `json:"name"`
	Steps []workflow.Step `json:"steps"`
}

type createApplicationRequest struct {
	TemplateID string         `json:"template_id"`
	Data       map[string]any `json:"data"`
}

type actionRequest struct {
	Action      string         `json:"action"`
	Comment     string         `json:"comment"`
	Data        map[string]any `json:"data"`
	SignPayload any            `json:"sign_payload"`
}

func (a *API) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requirePrincipal(w, r); !ok {
			return
		}
		templates, err := a.engine.ListTemplates(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
	case http.MethodPost:
		p, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		var req createTemplateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tmpl, err := a.engine.CreateTemplate(r.Context(), p, &workflow.Template{
			Name:  req.Name,
			Steps: req.Steps,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "workflow.template.create", "template", tmpl.ID)
		w.Header().Set("Location", fmt.Sprintf("/v1/templates/%s", tmpl.ID))
		writeJSON(w, http.StatusCreated, tmpl)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTemplateResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/templates/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	tmpl, err := a.engine.GetTemplate(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (a *API) handleApplications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		filter := workflow.ApplicationFilter{
			Status: workflow.Status(r.URL.Query().Get("status")),
		}
		// Non-admins only see their own applications.
		if !p.IsSystemAdmin() {
			filter.CreatedBy = p.UserID
		}
		apps, err := a.engine.ListApplications(r.Context(), filter)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
	case http.MethodPost:
		p, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		var req createApplicationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		app, err := a.engine.CreateApplication(r.Context(), p, req.TemplateID, req.Data)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "workflow.application.create", "application", app.ID)
		w.Header().Set("Location", fmt.Sprintf("/v1/applications/%s", app.ID))
		writeJSON(w, http.StatusCreated, app)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleApplicationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/applications/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	appID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleApplication(w, r, appID)
	case len(parts) == 2 && parts[1] == "initialize":
		a.handleInitialize(w, r, appID)
	case len(parts) == 2 && parts[1] == "actions":
		a.handleActions(w, r, appID)
	case len(parts) == 2 && parts[1] == "history":
		a.handleHistory(w, r, appID)
	case len(parts) == 2 && parts[1] == "progress":
		a.handleProgress(w, r, appID)
	case len(parts) == 2 && parts[1] == "signatures":
		a.handleSignatures(w, r, appID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleApplication(w http.ResponseWriter, r *http.Request, appID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	app, err := a.engine.GetApplication(r.Context(), appID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) handleInitialize(w http.ResponseWriter, r *http.Request, appID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	app, err := a.engine.InitializeWorkflow(r.Context(), p, appID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) handleActions(w http.ResponseWriter, r *http.Request, appID string) {
	switch r.Method {
	case http.MethodGet:
		p, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		actions, err := a.engine.AvailableActions(r.Context(), p, appID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if actions == nil {
			actions = []workflow.Action{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
	case http.MethodPost:
		p, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		var req actionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		action, err := workflow.ParseAction(req.Action)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		app, err := a.engine.ProcessAction(r.Context(), p, appID, workflow.ActionRequest{
			Action:      action,
			Comment:     req.Comment,
			Data:        req.Data,
			SignPayload: req.SignPayload,
			IPAddress:   clientIP(r),
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, app)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request, appID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	history, err := a.engine.History(r.Context(), appID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request, appID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	report, err := a.engine.Progress(r.Context(), appID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleSignatures(w http.ResponseWriter, r *http.Request, appID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	records, err := a.signatures.ListByApplication(r.Context(), appID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signatures": records})
}
