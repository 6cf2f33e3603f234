package workflow

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an Application.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusSubmitted        Status = "SUBMITTED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusChangesRequested Status = "CHANGES_REQUESTED"
)

// Terminal reports whether no further action is accepted in this status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is a closed set of things a principal can do to an application.
// The zero value is not a valid action.
type Action int

const (
	ActionUnknown Action = iota
	ActionApprove
	ActionReject
	ActionRequestChanges
	ActionSubmit
	ActionComplete
)

var actionNames = map[Action]string{
	ActionApprove:        "approve",
	ActionReject:         "reject",
	ActionRequestChanges: "request_changes",
	ActionSubmit:         "submit",
	ActionComplete:       "complete",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAction maps a wire name to an Action, or ErrUnknownAction.
func ParseAction(name string) (Action, error) {
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return ActionUnknown, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

func (a Action) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Action) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrUnknownAction, data)
	}
	parsed, err := ParseAction(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Step is one stage of a template, acted on by holders of RequiredRole.
type Step struct {
	ID                string   `json:"id"`
	Order             int      `json:"order"`
	Name              string   `json:"name"`
	RequiredRole      string   `json:"required_role"`
	AllowedActions    []Action `json:"allowed_actions"`
	SignatureRequired bool     `json:"signature_required"`
	Rules             []Rule   `json:"rules,omitempty"`
}

// Allows reports whether the step permits the action.
func (s *Step) Allows(action Action) bool {
	for _, a := range s.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// Template is an ordered sequence of steps an application walks through.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate enforces the structural invariants: at least one step, unique
// orders, a role on every step, and at least one allowed action per step.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: template has no steps", ErrInvalidInput)
	}
	seen := make(map[int]struct{}, len(t.Steps))
	for i := range t.Steps {
		step := &t.Steps[i]
		if _, dup := seen[step.Order]; dup {
			return fmt.Errorf("%w: duplicate step order %d", ErrInvalidInput, step.Order)
		}
		seen[step.Order] = struct{}{}
		if step.RequiredRole == "" {
			return fmt.Errorf("%w: step %d has no required role", ErrInvalidInput, step.Order)
		}
		if len(step.AllowedActions) == 0 {
			return fmt.Errorf("%w: step %d allows no actions", ErrInvalidInput, step.Order)
		}
	}
	return nil
}

// FirstStep returns the step with the lowest order.
func (t *Template) FirstStep() *Step {
	var first *Step
	for i := range t.Steps {
		if first == nil || t.Steps[i].Order < first.Order {
			first = &t.Steps[i]
		}
	}
	return first
}

func (t *Template) StepByID(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}

func (t *Template) StepByOrder(order int) *Step {
	for i := range t.Steps {
		if t.Steps[i].Order == order {
			return &t.Steps[i]
		}
	}
	return nil
}

// Application is one request walking a template. Version guards against
// concurrent transitions: a transition only applies if the stored version
// still matches the one the caller read.
type Application struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"template_id"`
	CurrentStepID *string        `json:"current_step_id,omitempty"`
	Status        Status         `json:"status"`
	CreatedBy     string         `json:"created_by"`
	Data          map[string]any `json:"data,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HistoryEntry is one immutable row of an application's decision trail.
type HistoryEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	StepID        string    `json:"step_id,omitempty"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Comment       string    `json:"comment,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
