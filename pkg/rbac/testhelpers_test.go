package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// stubAdapter is an in-test adapter with call counters and injectable failures
type stubAdapter struct {
	mu    sync.Mutex
	users map[string]string
	roles map[string]*Role

	userErr error
	roleErr error

	userCalls atomic.Int32
	roleCalls atomic.Int32
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{
		users: map[string]string{},
		roles: map[string]*Role{},
	}
}

func (s *stubAdapter) withRole(name string, perms ...Permission) *stubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[name] = &Role{Name: name, Permissions: perms}
	return s
}

func (s *stubAdapter) withUser(id, role string) *stubAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = role
	return s
}

func (s *stubAdapter) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	s.userCalls.Add(1)
	if s.userErr != nil {
		return "", false, s.userErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.users[userID]
	if !ok || role == "" {
		return "", false, nil
	}
	return role, true, nil
}

func (s *stubAdapter) GetRolePermissions(ctx context.Context, role string) (PermissionSet, error) {
	s.roleCalls.Add(1)
	if s.roleErr != nil {
		return PermissionSet{}, s.roleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[role]
	if !ok {
		return PermissionSet{}, nil
	}
	return r.PermissionSet(), nil
}

// storeAdapter adds the RoleStore surface to stubAdapter
type storeAdapter struct {
	*stubAdapter
}

func (s storeAdapter) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.roles[role.Name]; ok && !r.IsDeleted() {
		return ErrRoleExists
	}
	cp := *role
	s.roles[role.Name] = &cp
	return nil
}

func (s storeAdapter) GetRole(ctx context.Context, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s storeAdapter) ListRoles(ctx context.Context, includeDeleted bool) ([]*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Role
	for _, r := range s.roles {
		if r.IsDeleted() && !includeDeleted {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s storeAdapter) UpdateRolePermissions(ctx context.Context, name string, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[name]
	if !ok || r.IsDeleted() {
		return ErrRoleNotFound
	}
	r.Permissions = perms
	return nil
}

func (s storeAdapter) SoftDeleteRole(ctx context.Context, name string) error {
	return errors.New("not used")
}

func (s storeAdapter) AssignUserRole(ctx context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = role
	return nil
}

// recordingMetrics counts observations by label
type recordingMetrics struct {
	mu          sync.Mutex
	lookups     map[string]int
	resolutions map[string]int
	decisions   map[string]int
	cacheHits   map[string]int
	cacheMisses map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		lookups:     map[string]int{},
		resolutions: map[string]int{},
		decisions:   map[string]int{},
		cacheHits:   map[string]int{},
		cacheMisses: map[string]int{},
	}
}

func (m *recordingMetrics) ObserveLookup(op, backend string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := backend + "/" + op
	if err != nil {
		key += "/error"
	}
	m.lookups[key]++
}

func (m *recordingMetrics) ObserveResolution(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions[result]++
}

func (m *recordingMetrics) ObserveDecision(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[outcome]++
}

func (m *recordingMetrics) ObserveCache(kind string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits[kind]++
	} else {
		m.cacheMisses[kind]++
	}
}
