package rbac

import (
	"context"
	"io"
)

// Adapter is the storage abstraction the resolver reads from.
//
// GetUserRole returns found=false with a nil error when the user does not
// exist or has no role assigned. GetRolePermissions returns the empty set when
// the role does not exist or is soft-deleted; implementations filter
// tombstones themselves. Storage failures surface as *AdapterError.
type Adapter interface {
	GetUserRole(ctx context.Context, userID string) (role string, found bool, err error)
	GetRolePermissions(ctx context.Context, role string) (PermissionSet, error)
}

// Pinger is implemented by adapters that can report backend reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// RoleStore is the administrative write surface some adapters offer.
// The resolution path never calls it.
type RoleStore interface {
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context, includeDeleted bool) ([]*Role, error)
	UpdateRolePermissions(ctx context.Context, name string, perms []Permission) error
	SoftDeleteRole(ctx context.Context, name string) error
}

// UserRoleAssigner sets a user's role. Only provisioning tools use it;
// an empty role clears the assignment.
type UserRoleAssigner interface {
	AssignUserRole(ctx context.Context, userID, role string) error
}

// Wrapper is implemented by adapters that decorate another adapter
type Wrapper interface {
	Unwrap() Adapter
}

// walk visits a and every adapter it wraps, outermost first, until fn returns true
func walk(a Adapter, fn func(Adapter) bool) {
	for a != nil {
		if fn(a) {
			return
		}
		w, ok := a.(Wrapper)
		if !ok {
			return
		}
		a = w.Unwrap()
	}
}

// RoleStoreOf returns the first RoleStore in a's wrapper chain.
// Wrappers that implement RoleStore themselves (the caching adapter) are
// returned before the adapter they wrap so their bookkeeping sees the write.
func RoleStoreOf(a Adapter) (RoleStore, bool) {
	var store RoleStore
	walk(a, func(cur Adapter) bool {
		s, ok := cur.(RoleStore)
		if ok {
			store = s
		}
		return ok
	})
	return store, store != nil
}

// AssignerOf returns the first UserRoleAssigner in a's wrapper chain
func AssignerOf(a Adapter) (UserRoleAssigner, bool) {
	var assigner UserRoleAssigner
	walk(a, func(cur Adapter) bool {
		s, ok := cur.(UserRoleAssigner)
		if ok {
			assigner = s
		}
		return ok
	})
	return assigner, assigner != nil
}

// Ping calls the first Pinger in a's wrapper chain. Adapters without one are
// considered healthy.
func Ping(ctx context.Context, a Adapter) error {
	var err error
	walk(a, func(cur Adapter) bool {
		p, ok := cur.(Pinger)
		if ok {
			err = p.Ping(ctx)
		}
		return ok
	})
	return err
}

// Close releases the first io.Closer in a's wrapper chain
func Close(a Adapter) error {
	var err error
	walk(a, func(cur Adapter) bool {
		c, ok := cur.(io.Closer)
		if ok {
			err = c.Close()
		}
		return ok
	})
	return err
}

// AdapterFunc adapts two plain functions into an Adapter. Useful in tests and
// when the identity store lives elsewhere.
type AdapterFunc struct {
	UserRole        func(ctx context.Context, userID string) (string, bool, error)
	RolePermissions func(ctx context.Context, role string) (PermissionSet, error)
}

// GetUserRole calls UserRole
func (f AdapterFunc) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	return f.UserRole(ctx, userID)
}

// GetRolePermissions calls RolePermissions
func (f AdapterFunc) GetRolePermissions(ctx context.Context, role string) (PermissionSet, error) {
	return f.RolePermissions(ctx, role)
}
