package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and the smoke binary; production uses the Postgres store.
type InMemory struct {
	mu         sync.RWMutex
	roles      map[int64]*Role
	perms      map[string]Permission  // name -> permission
	rolePerms  map[int64]map[string]struct{}
	userRoles  map[int64]map[int64]struct{}
	nextRoleID int64
	nextPermID int64
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a store seeded with the builtin permission catalog
// and a default "everyone" role, mirroring provisioning.
func NewInMemory() *InMemory {
	s := &InMemory{
		roles:     make(map[int64]*Role),
		perms:     make(map[string]Permission),
		rolePerms: make(map[int64]map[string]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
	}
	for _, p := range BuiltinPermissions {
		s.nextPermID++
		p.ID = s.nextPermID
		s.perms[p.Name] = p
	}
	s.nextRoleID++
	s.roles[s.nextRoleID] = &Role{
		ID:        s.nextRoleID,
		Name:      "everyone",
		IsDefault: true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.rolePerms[s.nextRoleID] = make(map[string]struct{})
	return s
}

func (s *InMemory) CreateRole(ctx context.Context, name, color string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return Role{}, fmt.Errorf("%w: role %s already exists", ErrConflict, name)
		}
	}
	s.nextRoleID++
	role := &Role{
		ID:        s.nextRoleID,
		Name:      name,
		Color:     color,
		Position:  len(s.roles),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.roles[role.ID] = role
	s.rolePerms[role.ID] = make(map[string]struct{})
	return *role, nil
}

func (s *InMemory) GetRole(ctx context.Context, roleID int64) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	return *role, nil
}

func (s *InMemory) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, *r)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Position != roles[j].Position {
			return roles[i].Position < roles[j].Position
		}
		return roles[i].ID < roles[j].ID
	})
	return roles, nil
}

func (s *InMemory) UpdateRole(ctx context.Context, roleID int64, upd RoleUpdate) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	if upd.Name != nil {
		for _, r := range s.roles {
			if r.ID != roleID && r.Name == *upd.Name {
				return Role{}, fmt.Errorf("%w: role %s already exists", ErrConflict, *upd.Name)
			}
		}
		role.Name = *upd.Name
	}
	if upd.Color != nil {
		role.Color = *upd.Color
	}
	if upd.Position != nil {
		role.Position = *upd.Position
	}
	role.UpdatedAt = time.Now().UTC()
	return *role, nil
}

func (s *InMemory) DeleteRole(ctx context.Context, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	if role.IsDefault {
		return fmt.Errorf("%w: default role cannot be deleted", ErrConflict)
	}
	// Explicit cascade: detach from every user and permission first.
	for _, assigned := range s.userRoles {
		delete(assigned, roleID)
	}
	delete(s.rolePerms, roleID)
	delete(s.roles, roleID)
	return nil
}

func (s *InMemory) DefaultRole(ctx context.Context) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.IsDefault {
			return *r, nil
		}
	}
	return Role{}, ErrDefaultRoleMissing
}

func (s *InMemory) Permissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].ID < perms[j].ID })
	return perms, nil
}

func (s *InMemory) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	next := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := s.perms[name]; !ok {
			return fmt.Errorf("%w: permission %s", ErrNotFound, name)
		}
		next[name] = struct{}{}
	}
	s.rolePerms[roleID] = next
	return nil
}

func (s *InMemory) RolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, ErrNotFound
	}
	names := make([]string, 0, len(s.rolePerms[roleID]))
	for name := range s.rolePerms[roleID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemory) AssignRole(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	assigned, ok := s.userRoles[userID]
	if !ok {
		assigned = make(map[int64]struct{})
		s.userRoles[userID] = assigned
	}
	assigned[roleID] = struct{}{}
	return nil
}

func (s *InMemory) RemoveRole(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	if role.IsDefault {
		return fmt.Errorf("%w: default role cannot be removed", ErrConflict)
	}
	if assigned, ok := s.userRoles[userID]; ok {
		delete(assigned, roleID)
	}
	return nil
}

func (s *InMemory) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var roles []Role
	for roleID := range s.userRoles[userID] {
		if r, ok := s.roles[roleID]; ok {
			roles = append(roles, *r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (s *InMemory) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	union := make(map[string]struct{})
	for roleID := range s.userRoles[userID] {
		for name := range s.rolePerms[roleID] {
			union[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
