package rbac

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingAdapter retries transient adapter failures with exponential backoff.
// Permanent failures and the caller's context ending stop the loop at once.
type RetryingAdapter struct {
	next        Adapter
	maxRetries  uint64
	initialWait time.Duration
	maxWait     time.Duration
}

// NewRetryingAdapter wraps next, retrying up to maxRetries times
func NewRetryingAdapter(next Adapter, maxRetries int) *RetryingAdapter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingAdapter{
		next:        next,
		maxRetries:  uint64(maxRetries),
		initialWait: 50 * time.Millisecond,
		maxWait:     time.Second,
	}
}

// WithWaits overrides the initial and maximum backoff intervals
func (r *RetryingAdapter) WithWaits(initial, ceiling time.Duration) *RetryingAdapter {
	r.initialWait = initial
	r.maxWait = ceiling
	return r
}

// Unwrap returns the wrapped adapter
func (r *RetryingAdapter) Unwrap() Adapter {
	return r.next
}

func (r *RetryingAdapter) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initialWait
	eb.MaxInterval = r.maxWait
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)
}

func (r *RetryingAdapter) do(ctx context.Context, fn func() error) error {
	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx))
	return err
}

// GetUserRole retries the wrapped lookup on transient failure
func (r *RetryingAdapter) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	var (
		role  string
		found bool
	)
	err := r.do(ctx, func() error {
		var err error
		role, found, err = r.next.GetUserRole(ctx, userID)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return role, found, nil
}

// GetRolePermissions retries the wrapped lookup on transient failure
func (r *RetryingAdapter) GetRolePermissions(ctx context.Context, role string) (PermissionSet, error) {
	var perms PermissionSet
	err := r.do(ctx, func() error {
		var err error
		perms, err = r.next.GetRolePermissions(ctx, role)
		return err
	})
	if err != nil {
		return PermissionSet{}, err
	}
	return perms, nil
}
