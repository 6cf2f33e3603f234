package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node development
// runs. Not intended for production use.
type MemoryStore struct {
	mu          sync.RWMutex
	roles       map[string]*Role
	users       map[string]*User
	assignments map[string]map[string]struct{} // userID -> roleID set
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       map[string]*Role{},
		users:       map[string]*User{},
		assignments: map[string]map[string]struct{}{},
	}
}

func (s *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return fmt.Errorf("%w: role name %s already exists", ErrConflict, role.Name)
		}
	}
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *MemoryStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	return cloneRole(role), nil
}

func (s *MemoryStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, fmt.Errorf("%w: role %s", ErrNotFound, name)
}

func (s *MemoryStore) ListRoles(ctx context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, role.ID)
	}
	for id, existing := range s.roles {
		if id != role.ID && existing.Name == role.Name {
			return fmt.Errorf("%w: role name %s already exists", ErrConflict, role.Name)
		}
	}
	s.roles[role.ID] = cloneRole(role)
	return nil
}

func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(s.roles, id)
	return nil
}

func (s *MemoryStore) ResolveRoles(ctx context.Context, names []string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Role
	for _, name := range names {
		for _, role := range s.roles {
			if role.Name == name {
				out = append(out, cloneRole(role))
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s already registered", ErrConflict, u.Email)
		}
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	clone := *u
	return &clone, nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
}

func (s *MemoryStore) AssignRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	set, ok := s.assignments[userID]
	if !ok {
		set = map[string]struct{}{}
		s.assignments[userID] = set
	}
	if _, ok := set[roleID]; ok {
		return fmt.Errorf("%w: role already assigned", ErrConflict)
	}
	set[roleID] = struct{}{}
	return nil
}

func (s *MemoryStore) UnassignRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.assignments[userID]
	if !ok {
		return fmt.Errorf("%w: assignment", ErrNotFound)
	}
	if _, ok := set[roleID]; !ok {
		return fmt.Errorf("%w: assignment", ErrNotFound)
	}
	delete(set, roleID)
	return nil
}

func (s *MemoryStore) RolesForUser(ctx context.Context, userID string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Role
	for roleID := range s.assignments[userID] {
		if role, ok := s.roles[roleID]; ok {
			out = append(out, cloneRole(role))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) AssignmentCount(ctx context.Context, roleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, set := range s.assignments {
		if _, ok := set[roleID]; ok {
			count++
		}
	}
	return count, nil
}

func cloneRole(role *Role) *Role {
	clone := *role
	clone.Permissions = append([]string(nil), role.Permissions...)
	if clone.Permissions == nil {
		clone.Permissions = []string{}
	}
	return &clone
}
