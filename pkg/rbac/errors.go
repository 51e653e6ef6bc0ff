package rbac

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no user id accompanies a check.
	// Authentication always precedes resolution.
	ErrUnauthenticated = errors.New("rbac: unauthenticated")

	// ErrRoleNotFound is returned by role writes that target a missing or deleted role
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrRoleExists is returned when creating a role whose name is already active
	ErrRoleExists = errors.New("rbac: role already exists")

	// ErrReadOnly is returned when an adapter does not support administrative writes
	ErrReadOnly = errors.New("rbac: adapter does not support role writes")
)

// AdapterConfigError reports an invalid or missing storage configuration.
// It is fatal to startup and never retried.
type AdapterConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *AdapterConfigError) Error() string {
	msg := fmt.Sprintf("rbac: invalid adapter config %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterConfigError) Unwrap() error {
	return e.Err
}

// AdapterError reports a storage I/O failure during a lookup or write.
// Transient marks failures worth retrying (network, timeouts).
type AdapterError struct {
	Op        string
	Backend   string
	Err       error
	Transient bool
}

func (e *AdapterError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("rbac: %s adapter %s failed: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("rbac: adapter %s failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps err for op, marking it transient unless the failure
// came from the caller's own context ending.
func NewAdapterError(backend, op string, err error) *AdapterError {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	transient := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	return &AdapterError{Op: op, Backend: backend, Err: err, Transient: transient}
}

// PermanentAdapterError wraps err as a non-retryable adapter failure
func PermanentAdapterError(backend, op string, err error) *AdapterError {
	return &AdapterError{Op: op, Backend: backend, Err: err}
}

// ForbiddenError means the identity resolved but lacks the permission.
// It is an expected outcome, not a system fault.
type ForbiddenError struct {
	UserID     string
	Permission Permission
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("rbac: user %q lacks permission %q", e.UserID, e.Permission)
}

// AuthorizationUnavailableError means the permission set could not be
// determined because the adapter failed.
type AuthorizationUnavailableError struct {
	UserID     string
	Permission Permission
	Err        error
}

func (e *AuthorizationUnavailableError) Error() string {
	return fmt.Sprintf("rbac: authorization unavailable for user %q checking %q: %v", e.UserID, e.Permission, e.Err)
}

func (e *AuthorizationUnavailableError) Unwrap() error {
	return e.Err
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}

// IsUnavailable reports whether err is (or wraps) an AuthorizationUnavailableError
func IsUnavailable(err error) bool {
	var ue *AuthorizationUnavailableError
	return errors.As(err, &ue)
}

// IsAdapterError reports whether err is (or wraps) an AdapterError
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}

// IsTransient reports whether err wraps an AdapterError marked transient
func IsTransient(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Transient
}
