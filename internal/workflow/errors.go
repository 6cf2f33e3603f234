package workflow

import "errors"

var (
	ErrInvalidInput     = errors.New("workflow: invalid input")
	ErrNotFound         = errors.New("workflow: not found")
	ErrTemplateNotFound = errors.New("workflow: template not found")

	// ErrInvalidState marks an action attempted in a state that accepts none,
	// or one the current state does not permit.
	ErrInvalidState = errors.New("workflow: invalid state")

	ErrUnknownAction     = errors.New("workflow: unknown action")
	ErrSignatureRequired = errors.New("workflow: signature required")

	// ErrConcurrentModification means another action won the race on this
	// application. The caller may retry; the losing action took no effect.
	ErrConcurrentModification = errors.New("workflow: concurrent modification")
)
