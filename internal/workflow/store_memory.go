package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node development
// runs. Not intended for production use.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string]*Template
	apps      map[string]*Application
	history   map[string][]HistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: map[string]*Template{},
		apps:      map[string]*Application{},
		history:   map[string][]HistoryEntry{},
	}
}

func (s *MemoryStore) CreateTemplate(ctx context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return fmt.Errorf("%w: template %s already exists", ErrInvalidInput, t.ID)
	}
	s.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: template %s", ErrNotFound, id)
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateApplication(ctx context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return fmt.Errorf("%w: application %s already exists", ErrInvalidInput, app.ID)
	}
	s.apps[app.ID] = cloneApplication(app)
	return nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return cloneApplication(app), nil
}

func (s *MemoryStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Application, 0)
	for _, app := range s.apps {
		if filter.CreatedBy != "" && app.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		out = append(out, cloneApplication(app))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ApplyTransition is the single mutation point: the version check and the
// history append happen under one lock, so two racing callers that read
// the same version cannot both win.
func (s *MemoryStore) ApplyTransition(ctx context.Context, t Transition) (*Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[t.ApplicationID]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, t.ApplicationID)
	}
	if app.Version != t.ExpectedVersion {
		return nil, fmt.Errorf("%w: application %s version %d, expected %d",
			ErrConcurrentModification, t.ApplicationID, app.Version, t.ExpectedVersion)
	}
	app.Status = t.NewStatus
	app.CurrentStepID = t.NewStepID
	if t.Data != nil {
		app.Data = t.Data
	}
	app.Version++
	app.UpdatedAt = t.Entry.Timestamp
	s.history[t.ApplicationID] = append(s.history[t.ApplicationID], t.Entry)
	return cloneApplication(app), nil
}

func (s *MemoryStore) History(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history[applicationID]...), nil
}

func cloneTemplate(t *Template) *Template {
	clone := *t
	clone.Steps = make([]Step, len(t.Steps))
	for i, step := range t.Steps {
		step.AllowedActions = append([]Action(nil), step.AllowedActions...)
		step.Rules = append([]Rule(nil), step.Rules...)
		clone.Steps[i] = step
	}
	return &clone
}

func cloneApplication(app *Application) *Application {
	clone := *app
	if app.CurrentStepID != nil {
		id := *app.CurrentStepID
		clone.CurrentStepID = &id
	}
	clone.Data = make(map[string]any, len(app.Data))
	for k, v := range app.Data {
		clone.Data[k] = v
	}
	return &clone
}
