package rbac

import (
	"context"
	"errors"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Enforcer is the server-side check every protected operation calls before
// doing its work
type Enforcer struct {
	resolver *Resolver
	logger   *observability.Logger
	metrics  Metrics
}

// NewEnforcer creates an enforcer on top of resolver
func NewEnforcer(resolver *Resolver, opts ...Option) *Enforcer {
	o := buildOptions(opts)
	return &Enforcer{
		resolver: resolver,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Resolver returns the resolver backing this enforcer
func (e *Enforcer) Resolver() *Resolver {
	return e.resolver
}

// Require returns nil when userID holds permission.
//
// Denial returns *ForbiddenError. An adapter failure returns
// *AuthorizationUnavailableError wrapping the *AdapterError. An empty userID
// returns ErrUnauthenticated.
func (e *Enforcer) Require(ctx context.Context, userID string, permission Permission) error {
	return e.RequireAll(ctx, userID, permission)
}

// RequireAll resolves once and checks every permission in order, reporting
// the first one missing. An empty list only requires authentication.
func (e *Enforcer) RequireAll(ctx context.Context, userID string, permissions ...Permission) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if len(permissions) == 0 {
		return nil
	}

	perms, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return err
		}
		entry := observability.FromContext(ctx, e.logger).
			WithError(err).
			WithField("subject", userID).
			WithField("permission", string(permissions[0]))
		if ctx.Err() != nil {
			// caller went away; not a storage fault
			entry.Debug("authorization check abandoned")
		} else {
			e.metrics.ObserveDecision(OutcomeUnavailable)
			entry.Error("authorization unavailable")
		}
		return &AuthorizationUnavailableError{
			UserID:     userID,
			Permission: permissions[0],
			Err:        err,
		}
	}

	for _, p := range permissions {
		if !perms.Has(p) {
			e.metrics.ObserveDecision(OutcomeForbidden)
			observability.FromContext(ctx, e.logger).
				WithField("subject", userID).
				WithField("permission", string(p)).
				Debug("permission denied")
			return &ForbiddenError{UserID: userID, Permission: p}
		}
	}

	e.metrics.ObserveDecision(OutcomeAllowed)
	return nil
}

// Can reports whether userID holds permission. Denial is (false, nil);
// unavailability and missing identity are returned as errors.
func (e *Enforcer) Can(ctx context.Context, userID string, permission Permission) (bool, error) {
	err := e.Require(ctx, userID, permission)
	switch {
	case err == nil:
		return true, nil
	case IsForbidden(err):
		return false, nil
	default:
		return false, err
	}
}
