package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 30 * time.Second
)

// userRoleEntry caches a GetUserRole result, including "no role"
type userRoleEntry struct {
	role  string
	found bool
}

// CachingAdapter is a read-through cache over both adapter lookups.
// Entries expire after the TTL; failed lookups are never stored.
type CachingAdapter struct {
	next    Adapter
	users   *lru.LRU[string, userRoleEntry]
	roles   *lru.LRU[string, PermissionSet]
	metrics Metrics
}

// NewCachingAdapter wraps next with an LRU of size entries per lookup kind.
// Non-positive size or ttl fall back to the defaults.
func NewCachingAdapter(next Adapter, size int, ttl time.Duration, opts ...Option) *CachingAdapter {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	o := buildOptions(opts)
	return &CachingAdapter{
		next:    next,
		users:   lru.NewLRU[string, userRoleEntry](size, nil, ttl),
		roles:   lru.NewLRU[string, PermissionSet](size, nil, ttl),
		metrics: o.metrics,
	}
}

// Unwrap returns the wrapped adapter
func (c *CachingAdapter) Unwrap() Adapter {
	return c.next
}

// GetUserRole returns the cached role or reads through on a miss
func (c *CachingAdapter) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	if entry, ok := c.users.Get(userID); ok {
		c.metrics.ObserveCache("user_role", true)
		return entry.role, entry.found, nil
	}
	c.metrics.ObserveCache("user_role", false)

	role, found, err := c.next.GetUserRole(ctx, userID)
	if err != nil {
		return "", false, err
	}
	c.users.Add(userID, userRoleEntry{role: role, found: found})
	return role, found, nil
}

// GetRolePermissions returns the cached set or reads through on a miss
func (c *CachingAdapter) GetRolePermissions(ctx context.Context, role string) (PermissionSet, error) {
	if perms, ok := c.roles.Get(role); ok {
		c.metrics.ObserveCache("role_permissions", true)
		return perms, nil
	}
	c.metrics.ObserveCache("role_permissions", false)

	perms, err := c.next.GetRolePermissions(ctx, role)
	if err != nil {
		return PermissionSet{}, err
	}
	c.roles.Add(role, perms)
	return perms, nil
}

// Invalidate drops the cached permission set for role
func (c *CachingAdapter) Invalidate(role string) {
	c.roles.Remove(role)
}

// InvalidateUser drops the cached role assignment for userID
func (c *CachingAdapter) InvalidateUser(userID string) {
	c.users.Remove(userID)
}

// Purge drops every cached entry
func (c *CachingAdapter) Purge() {
	c.users.Purge()
	c.roles.Purge()
}

// Len returns the number of cached user and role entries
func (c *CachingAdapter) Len() (users, roles int) {
	return c.users.Len(), c.roles.Len()
}

func (c *CachingAdapter) store() (RoleStore, error) {
	store, ok := RoleStoreOf(c.next)
	if !ok {
		return nil, ErrReadOnly
	}
	return store, nil
}

// CreateRole forwards to the wrapped RoleStore and invalidates the role
func (c *CachingAdapter) CreateRole(ctx context.Context, role *Role) error {
	store, err := c.store()
	if err != nil {
		return err
	}
	defer c.Invalidate(role.Name)
	return store.CreateRole(ctx, role)
}

// GetRole forwards to the wrapped RoleStore; it is not cached
func (c *CachingAdapter) GetRole(ctx context.Context, name string) (*Role, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	return store.GetRole(ctx, name)
}

// ListRoles forwards to the wrapped RoleStore; it is not cached
func (c *CachingAdapter) ListRoles(ctx context.Context, includeDeleted bool) ([]*Role, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	return store.ListRoles(ctx, includeDeleted)
}

// UpdateRolePermissions forwards to the wrapped RoleStore and invalidates the role
func (c *CachingAdapter) UpdateRolePermissions(ctx context.Context, name string, perms []Permission) error {
	store, err := c.store()
	if err != nil {
		return err
	}
	defer c.Invalidate(name)
	return store.UpdateRolePermissions(ctx, name, perms)
}

// SoftDeleteRole forwards to the wrapped RoleStore and invalidates the role
func (c *CachingAdapter) SoftDeleteRole(ctx context.Context, name string) error {
	store, err := c.store()
	if err != nil {
		return err
	}
	defer c.Invalidate(name)
	return store.SoftDeleteRole(ctx, name)
}

// AssignUserRole forwards to the wrapped assigner and invalidates the user
func (c *CachingAdapter) AssignUserRole(ctx context.Context, userID, role string) error {
	assigner, ok := AssignerOf(c.next)
	if !ok {
		return ErrReadOnly
	}
	defer c.InvalidateUser(userID)
	return assigner.AssignUserRole(ctx, userID, role)
}
