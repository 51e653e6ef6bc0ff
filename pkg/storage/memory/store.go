// Package memory is a map-backed adapter for development and tests
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Store implements rbac.Adapter, rbac.RoleStore and rbac.UserRoleAssigner in
// process memory. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	roles map[string]rbac.Role
	users map[string]string
	now   func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		roles: make(map[string]rbac.Role),
		users: make(map[string]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetUserRole returns the user's role, if any
func (s *Store) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, rbac.NewAdapterError("memory", "get_user_role", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.users[userID]
	if !ok || role == "" {
		return "", false, nil
	}
	return role, true, nil
}

// GetRolePermissions returns an active role's permissions
func (s *Store) GetRolePermissions(ctx context.Context, role string) (rbac.PermissionSet, error) {
	if err := ctx.Err(); err != nil {
		return rbac.PermissionSet{}, rbac.NewAdapterError("memory", "get_role_permissions", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[role]
	if !ok {
		return rbac.PermissionSet{}, nil
	}
	return r.PermissionSet(), nil
}

// CreateRole adds a role or revives a tombstoned one
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	role.Normalize()
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.roles[role.Name]; ok && !existing.IsDeleted() {
		return rbac.ErrRoleExists
	}

	now := s.now()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.DeletedAt = nil
	s.roles[role.Name] = copyRole(*role)
	return nil
}

// GetRole returns a copy of the named role, including tombstoned roles
func (s *Store) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[name]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	cp := copyRole(r)
	return &cp, nil
}

// ListRoles returns copies of the stored roles ordered by name
func (s *Store) ListRoles(ctx context.Context, includeDeleted bool) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]*rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if r.IsDeleted() && !includeDeleted {
			continue
		}
		cp := copyRole(r)
		roles = append(roles, &cp)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// UpdateRolePermissions replaces an active role's permissions
func (s *Store) UpdateRolePermissions(ctx context.Context, name string, perms []rbac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[name]
	if !ok || r.IsDeleted() {
		return rbac.ErrRoleNotFound
	}
	r.Permissions = rbac.NewPermissionSet(perms...).List()
	r.UpdatedAt = s.now()
	s.roles[name] = r
	return nil
}

// SoftDeleteRole tombstones an active role
func (s *Store) SoftDeleteRole(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[name]
	if !ok || r.IsDeleted() {
		return rbac.ErrRoleNotFound
	}
	now := s.now()
	r.DeletedAt = &now
	r.UpdatedAt = now
	s.roles[name] = r
	return nil
}

// AssignUserRole sets or clears a user's role
func (s *Store) AssignUserRole(ctx context.Context, userID, role string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = role
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func copyRole(r rbac.Role) rbac.Role {
	r.Permissions = append([]rbac.Permission(nil), r.Permissions...)
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		r.DeletedAt = &t
	}
	return r
}
