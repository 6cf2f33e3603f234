package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parcflow.org/internal/audit"
	"parcflow.org/internal/ids"
	"parcflow.org/internal/notify"
	"parcflow.org/internal/obs"
	"parcflow.org/internal/rbac"
	"parcflow.org/internal/signature"
)

// ActionRequest carries one principal decision on an application.
// SignPayload, when set, is signed atomically with the action for steps
// that require a signature.
type ActionRequest struct {
	Action      Action
	Comment     string
	Data        map[string]any
	SignPayload any
	IPAddress   string
}

// ProgressReport summarizes how far an application has advanced.
type ProgressReport struct {
	ApplicationID    string  `json:"application_id"`
	Status           Status  `json:"status"`
	CurrentStepOrder *int    `json:"current_step_order,omitempty"`
	CurrentStepName  string  `json:"current_step_name,omitempty"`
	TotalSteps       int     `json:"total_steps"`
	CompletedActions int     `json:"completed_actions"`
	Percent          int     `json:"percent"`
}

// Engine drives application lifecycles. Every mutating operation is
// authorized through the guard and recorded through the audit recorder,
// success or failure.
type Engine struct {
	store      Store
	guard      *rbac.Guard
	signatures *signature.Service
	recorder   *audit.Recorder
	hub        *notify.Hub
	now        func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithNotifier attaches a hub for step-change and terminal-status events.
func WithNotifier(hub *notify.Hub) EngineOption {
	return func(e *Engine) { e.hub = hub }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine. Store, guard, signature service and
// recorder are all required.
func NewEngine(store Store, guard *rbac.Guard, signatures *signature.Service, recorder *audit.Recorder, opts ...EngineOption) (*Engine, error) {
	if store == nil || guard == nil || signatures == nil || recorder == nil {
		return nil, errors.New("workflow engine requires store, guard, signature service and audit recorder")
	}
	e := &Engine{
		store:      store,
		guard:      guard,
		signatures: signatures,
		recorder:   recorder,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CreateTemplate validates and persists a workflow template. Only workflow
// administrators may define templates.
func (e *Engine) CreateTemplate(ctx context.Context, principal rbac.Principal, tmpl *Template) (*Template, error) {
	if d := e.guard.Authorize(ctx, principal, rbac.AnyRole(rbac.SystemRoleName)); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrForbidden, d.Reason)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: template is required", ErrInvalidInput)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]
		if step.ID == "" {
			step.ID = ids.New()
		}
		for j := range step.Rules {
			if step.Rules[j].When == nil {
				continue
			}
			if err := step.Rules[j].When.Validate(); err != nil {
				return nil, fmt.Errorf("step %d rule %d: %w", step.Order, j, err)
			}
		}
	}
	tmpl.ID = ids.New()
	tmpl.CreatedAt = e.now().UTC()
	if err := e.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (e *Engine) GetTemplate(ctx context.Context, id string) (*Template, error) {
	return e.store.GetTemplate(ctx, id)
}

func (e *Engine) ListTemplates(ctx context.Context) ([]*Template, error) {
	return e.store.ListTemplates(ctx)
}

// CreateApplication opens a new application in DRAFT for the principal.
// Any authenticated user may create one.
func (e *Engine) CreateApplication(ctx context.Context, principal rbac.Principal, templateID string, data map[string]any) (*Application, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return nil, fmt.Errorf("%w: template_id is required", ErrInvalidInput)
	}
	if _, err := e.store.GetTemplate(ctx, templateID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
		}
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	now := e.now().UTC()
	app := &Application{
		ID:         ids.New(),
		TemplateID: templateID,
		Status:     StatusDraft,
		CreatedBy:  principal.UserID,
		Data:       data,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (e *Engine) GetApplication(ctx context.Context, id string) (*Application, error) {
	return e.store.GetApplication(ctx, id)
}

func (e *Engine) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*Application, error) {
	return e.store.ListApplications(ctx, filter)
}

func (e *Engine) History(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	return e.store.History(ctx, applicationID)
}

// InitializeWorkflow submits a DRAFT application: it assigns the template's
// first step and moves the status through SUBMITTED into IN_PROGRESS, with
// an initial history entry. Only the owner (or a system administrator) may
// submit.
func (e *Engine) InitializeWorkflow(ctx context.Context, principal rbac.Principal, applicationID string) (app *Application, err error) {
	timer := audit.StartTimer()
	defer func() {
		e.record(ctx, principal.UserID, "workflow.initialize", applicationID, timer, err)
	}()

	current, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if d := e.guard.Authorize(ctx, principal, rbac.OwnerOf(current.CreatedBy)); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrForbidden, d.Reason)
	}
	if current.Status != StatusDraft {
		return nil, fmt.Errorf("%w: application is %s, only DRAFT can be submitted", ErrInvalidState, current.Status)
	}

	tmpl, err := e.store.GetTemplate(ctx, current.TemplateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, current.TemplateID)
		}
		return nil, err
	}
	first := tmpl.FirstStep()
	if first == nil {
		return nil, fmt.Errorf("%w: template %s has no steps", ErrTemplateNotFound, tmpl.ID)
	}

	stepID := first.ID
	app, err = e.store.ApplyTransition(ctx, Transition{
		ApplicationID:   current.ID,
		ExpectedVersion: current.Version,
		NewStatus:       StatusInProgress,
		NewStepID:       &stepID,
		Data:            current.Data,
		Entry: HistoryEntry{
			ID:            ids.New(),
			ApplicationID: current.ID,
			StepID:        stepID,
			ActorID:       principal.UserID,
			Action:        ActionSubmit.String(),
			Timestamp:     e.now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}
	e.publish(notify.Event{
		ApplicationID: app.ID,
		Type:          notify.EventStepAdvanced,
		StepID:        stepID,
		Status:        string(app.Status),
		Recipients:    []string{first.RequiredRole},
	})
	return app, nil
}

// ProcessAction executes one decision on an application. The whole call is
// atomic: on any failure the application's step, status and history are
// unchanged. An audit entry is written regardless of outcome.
func (e *Engine) ProcessAction(ctx context.Context, principal rbac.Principal, applicationID string, req ActionRequest) (app *Application, err error) {
	timer := audit.StartTimer()
	action := req.Action
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		obs.WorkflowAction(action.String(), outcome)
		e.record(ctx, principal.UserID, "workflow."+action.String(), applicationID, timer, err)
	}()

	if action == ActionUnknown {
		return nil, fmt.Errorf("%w: action is required", ErrUnknownAction)
	}

	current, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	switch current.Status {
	case StatusInProgress:
		return e.processStepAction(ctx, principal, current, req)
	case StatusChangesRequested:
		return e.resubmit(ctx, principal, current, req)
	default:
		return nil, fmt.Errorf("%w: application is %s", ErrInvalidState, current.Status)
	}
}

// processStepAction runs the decision algorithm for an IN_PROGRESS
// application sitting on a concrete step.
func (e *Engine) processStepAction(ctx context.Context, principal rbac.Principal, current *Application, req ActionRequest) (*Application, error) {
	tmpl, err := e.store.GetTemplate(ctx, current.TemplateID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, current.TemplateID)
		}
		return nil, err
	}
	if current.CurrentStepID == nil {
		return nil, fmt.Errorf("%w: application %s has no current step", ErrNotFound, current.ID)
	}
	step := tmpl.StepByID(*current.CurrentStepID)
	if step == nil {
		return nil, fmt.Errorf("%w: step %s", ErrNotFound, *current.CurrentStepID)
	}

	if d := e.guard.Authorize(ctx, principal, rbac.AnyRole(step.RequiredRole)); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrForbidden, d.Reason)
	}

	if step.SignatureRequired {
		if err := e.ensureSignature(ctx, principal.UserID, current.ID, step.ID, req); err != nil {
			return nil, err
		}
	}

	if !step.Allows(req.Action) {
		return nil, fmt.Errorf("%w: step %q does not allow %s", ErrUnknownAction, step.Name, req.Action)
	}

	data := mergeData(current.Data, req.Data)
	newStatus, newStepID, recipients, err := e.resolveTransition(tmpl, step, req.Action, data)
	if err != nil {
		return nil, err
	}

	app, err := e.store.ApplyTransition(ctx, Transition{
		ApplicationID:   current.ID,
		ExpectedVersion: current.Version,
		NewStatus:       newStatus,
		NewStepID:       newStepID,
		Data:            data,
		Entry: HistoryEntry{
			ID:            ids.New(),
			ApplicationID: current.ID,
			StepID:        step.ID,
			ActorID:       principal.UserID,
			Action:        req.Action.String(),
			Comment:       req.Comment,
			Timestamp:     e.now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}

	e.notifyTransition(app, step, recipients)
	return app, nil
}

// resolveTransition evaluates the step's rules first-match-wins; with no
// matching rule the action's terminal mapping applies.
func (e *Engine) resolveTransition(tmpl *Template, step *Step, action Action, data map[string]any) (Status, *string, []string, error) {
	if action == ActionRequestChanges {
		// Control returns to the submitter; the step stays put so the
		// resubmitted application resumes exactly where it paused.
		stepID := step.ID
		return StatusChangesRequested, &stepID, nil, nil
	}

	for _, rule := range step.Rules {
		if rule.When != nil && !rule.When.Eval(data) {
			continue
		}
		next := tmpl.StepByOrder(rule.NextStepOrder)
		if next == nil {
			return "", nil, nil, fmt.Errorf("%w: rule points at missing step order %d", ErrNotFound, rule.NextStepOrder)
		}
		nextID := next.ID
		return StatusInProgress, &nextID, []string{next.RequiredRole}, nil
	}

	// No rule matched: fall back to the step sequence, then to the action's
	// terminal status.
	switch action {
	case ActionApprove:
		if next := nextByOrder(tmpl, step.Order); next != nil {
			nextID := next.ID
			return StatusInProgress, &nextID, []string{next.RequiredRole}, nil
		}
		return StatusApproved, nil, nil, nil
	case ActionComplete:
		return StatusApproved, nil, nil, nil
	case ActionReject:
		return StatusRejected, nil, nil, nil
	default:
		return "", nil, nil, fmt.Errorf("%w: %s is not valid mid-workflow", ErrInvalidState, action)
	}
}

// resubmit handles the CHANGES_REQUESTED cycle: only the owner may submit,
// and the application resumes at the step that requested changes.
func (e *Engine) resubmit(ctx context.Context, principal rbac.Principal, current *Application, req ActionRequest) (*Application, error) {
	if req.Action != ActionSubmit {
		return nil, fmt.Errorf("%w: only submit is accepted while changes are requested", ErrInvalidState)
	}
	if d := e.guard.Authorize(ctx, principal, rbac.OwnerOf(current.CreatedBy)); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrForbidden, d.Reason)
	}
	stepID := ""
	if current.CurrentStepID != nil {
		stepID = *current.CurrentStepID
	}
	app, err := e.store.ApplyTransition(ctx, Transition{
		ApplicationID:   current.ID,
		ExpectedVersion: current.Version,
		NewStatus:       StatusInProgress,
		NewStepID:       current.CurrentStepID,
		Data:            mergeData(current.Data, req.Data),
		Entry: HistoryEntry{
			ID:            ids.New(),
			ApplicationID: current.ID,
			StepID:        stepID,
			ActorID:       principal.UserID,
			Action:        ActionSubmit.String(),
			Comment:       req.Comment,
			Timestamp:     e.now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}
	e.publish(notify.Event{
		ApplicationID: app.ID,
		Type:          notify.EventStepAdvanced,
		StepID:        stepID,
		Status:        string(app.Status),
	})
	return app, nil
}

// ensureSignature enforces the signature gate: an existing record for the
// exact (application, step, user) triple satisfies it, otherwise a payload
// supplied with the action is signed in the same call.
func (e *Engine) ensureSignature(ctx context.Context, userID, applicationID, stepID string, req ActionRequest) error {
	_, err := e.signatures.Find(ctx, applicationID, stepID, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, signature.ErrNotFound) {
		return err
	}
	if req.SignPayload == nil {
		return fmt.Errorf("%w: step requires a signature by %s", ErrSignatureRequired, userID)
	}
	if _, err := e.signatures.Sign(ctx, userID, applicationID, stepID, req.SignPayload, req.IPAddress); err != nil {
		return err
	}
	return nil
}

// AvailableActions lists what the principal can currently do with the
// application.
func (e *Engine) AvailableActions(ctx context.Context, principal rbac.Principal, applicationID string) ([]Action, error) {
	app, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	switch app.Status {
	case StatusDraft:
		if principal.UserID == app.CreatedBy || principal.IsSystemAdmin() {
			return []Action{ActionSubmit}, nil
		}
		return nil, nil
	case StatusChangesRequested:
		if principal.UserID == app.CreatedBy || principal.IsSystemAdmin() {
			return []Action{ActionSubmit}, nil
		}
		return nil, nil
	case StatusInProgress:
		tmpl, err := e.store.GetTemplate(ctx, app.TemplateID)
		if err != nil {
			return nil, err
		}
		if app.CurrentStepID == nil {
			return nil, nil
		}
		step := tmpl.StepByID(*app.CurrentStepID)
		if step == nil || !principal.HasRole(step.RequiredRole) {
			return nil, nil
		}
		return append([]Action(nil), step.AllowedActions...), nil
	default:
		return nil, nil
	}
}

// Progress reports where the application stands against its template.
func (e *Engine) Progress(ctx context.Context, applicationID string) (*ProgressReport, error) {
	app, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	tmpl, err := e.store.GetTemplate(ctx, app.TemplateID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.History(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	report := &ProgressReport{
		ApplicationID:    app.ID,
		Status:           app.Status,
		TotalSteps:       len(tmpl.Steps),
		CompletedActions: len(history),
	}
	if app.CurrentStepID != nil {
		if step := tmpl.StepByID(*app.CurrentStepID); step != nil {
			order := step.Order
			report.CurrentStepOrder = &order
			report.CurrentStepName = step.Name
		}
	}
	switch {
	case app.Status.Terminal():
		report.Percent = 100
	case report.CurrentStepOrder != nil && report.TotalSteps > 0:
		report.Percent = (*report.CurrentStepOrder - 1) * 100 / report.TotalSteps
	}
	return report, nil
}

// record writes the audit entry for one engine operation. Failures inside
// the recorder never surface to the caller.
func (e *Engine) record(ctx context.Context, actorID, action, applicationID string, timer *audit.Timer, opErr error) {
	outcome := audit.OutcomeSuccess
	if opErr != nil {
		outcome = audit.OutcomeFailure
	}
	e.recorder.Record(ctx, audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "application",
		ResourceID:   applicationID,
		Outcome:      outcome,
		DurationMs:   timer.ElapsedMs(),
	})
}

func (e *Engine) notifyTransition(app *Application, from *Step, recipients []string) {
	switch {
	case app.Status.Terminal():
		e.publish(notify.Event{
			ApplicationID: app.ID,
			Type:          notify.EventCompleted,
			Status:        string(app.Status),
			Recipients:    []string{app.CreatedBy},
		})
	case app.Status == StatusChangesRequested:
		e.publish(notify.Event{
			ApplicationID: app.ID,
			Type:          notify.EventChangesRequested,
			StepID:        from.ID,
			Status:        string(app.Status),
			Recipients:    []string{app.CreatedBy},
		})
	default:
		stepID := ""
		if app.CurrentStepID != nil {
			stepID = *app.CurrentStepID
		}
		e.publish(notify.Event{
			ApplicationID: app.ID,
			Type:          notify.EventStepAdvanced,
			StepID:        stepID,
			Status:        string(app.Status),
			Recipients:    recipients,
		})
	}
}

func (e *Engine) publish(ev notify.Event) {
	if e.hub == nil {
		return
	}
	ev.At = e.now().UTC()
	e.hub.Publish(ev)
}

func nextByOrder(tmpl *Template, after int) *Step {
	var next *Step
	for i := range tmpl.Steps {
		s := &tmpl.Steps[i]
		if s.Order > after && (next == nil || s.Order < next.Order) {
			next = s
		}
	}
	return next
}

func mergeData(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
