package rbac

import (
	"context"
	"time"
)

// InstrumentedAdapter reports the latency and outcome of every lookup
type InstrumentedAdapter struct {
	next    Adapter
	backend string
	metrics Metrics
}

// NewInstrumentedAdapter wraps next, labelling observations with backend
func NewInstrumentedAdapter(next Adapter, backend string, opts ...Option) *InstrumentedAdapter {
	o := buildOptions(opts)
	return &InstrumentedAdapter{
		next:    next,
		backend: backend,
		metrics: o.metrics,
	}
}

// Unwrap returns the wrapped adapter
func (a *InstrumentedAdapter) Unwrap() Adapter {
	return a.next
}

// GetUserRole times the wrapped lookup
func (a *InstrumentedAdapter) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	start := time.Now()
	role, found, err := a.next.GetUserRole(ctx, userID)
	a.metrics.ObserveLookup("get_user_role", a.backend, time.Since(start), err)
	return role, found, err
}

// GetRolePermissions times the wrapped lookup
func (a *InstrumentedAdapter) GetRolePermissions(ctx context.Context, role string) (PermissionSet, error) {
	start := time.Now()
	perms, err := a.next.GetRolePermissions(ctx, role)
	a.metrics.ObserveLookup("get_role_permissions", a.backend, time.Since(start), err)
	return perms, err
}
