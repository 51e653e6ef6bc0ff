package rbac

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Resolver maps an authenticated user id to its role's permission set.
// It holds no state beyond its adapter and is safe for concurrent use.
type Resolver struct {
	adapter Adapter
	metrics Metrics
	tracer  trace.Tracer
}

// NewResolver creates a resolver reading from adapter
func NewResolver(adapter Adapter, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return &Resolver{
		adapter: adapter,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
}

// Adapter returns the adapter the resolver reads from
func (r *Resolver) Adapter() Adapter {
	return r.adapter
}

// Resolve returns the permission set of userID's role.
//
// An empty userID fails with ErrUnauthenticated before any lookup. A user
// without a role, or whose role is missing or soft-deleted, resolves to the
// empty set. Adapter failures are returned as *AdapterError and never
// retried here.
func (r *Resolver) Resolve(ctx context.Context, userID string) (PermissionSet, error) {
	if userID == "" {
		return PermissionSet{}, ErrUnauthenticated
	}

	ctx, span := r.tracer.Start(ctx, "rbac.Resolve")
	defer span.End()

	role, found, err := r.adapter.GetUserRole(ctx, userID)
	if err != nil {
		return PermissionSet{}, r.fail(span, asAdapterError("get_user_role", err))
	}
	if !found {
		span.SetAttributes(attribute.Bool("rbac.role_found", false))
		r.metrics.ObserveResolution(ResultEmpty)
		return PermissionSet{}, nil
	}
	span.SetAttributes(attribute.String("rbac.role", role))

	perms, err := r.adapter.GetRolePermissions(ctx, role)
	if err != nil {
		return PermissionSet{}, r.fail(span, asAdapterError("get_role_permissions", err))
	}

	span.SetAttributes(attribute.Int("rbac.permissions", perms.Len()))
	if perms.IsEmpty() {
		r.metrics.ObserveResolution(ResultEmpty)
	} else {
		r.metrics.ObserveResolution(ResultGranted)
	}
	return perms, nil
}

func (r *Resolver) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.metrics.ObserveResolution(ResultError)
	return err
}

// asAdapterError leaves *AdapterError values untouched and wraps anything
// else so callers only ever see one failure type
func asAdapterError(op string, err error) error {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	return NewAdapterError("", op, err)
}
