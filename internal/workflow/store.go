package workflow

import "context"

// ApplicationFilter narrows ListApplications.
type ApplicationFilter struct {
	CreatedBy string
	Status    Status
}

// Transition is the atomic unit of a workflow mutation: the application's
// step, status and data move together with one appended history entry, and
// only if the stored version still equals ExpectedVersion.
type Transition struct {
	ApplicationID   string
	ExpectedVersion int64
	NewStatus       Status
	NewStepID       *string
	Data            map[string]any
	Entry           HistoryEntry
}

// Store is the persistence contract for templates, applications and their
// history. ApplyTransition must be atomic: either the application row and
// the history entry both land, or neither does. A version mismatch yields
// ErrConcurrentModification.
type Store interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)

	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*Application, error)
	ApplyTransition(ctx context.Context, t Transition) (*Application, error)

	History(ctx context.Context, applicationID string) ([]HistoryEntry, error)
}
