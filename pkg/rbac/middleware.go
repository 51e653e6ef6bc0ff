package rbac

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
)

// PermissionMiddleware provides middleware for permission checking
type PermissionMiddleware struct {
	enforcer *Enforcer
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(enforcer *Enforcer) *PermissionMiddleware {
	return &PermissionMiddleware{
		enforcer: enforcer,
	}
}

// RequirePermission creates middleware that requires a specific permission
func (pm *PermissionMiddleware) RequirePermission(permission Permission) func(http.Handler) http.Handler {
	return pm.RequireAll(permission)
}

// RequireAll creates middleware that requires every listed permission.
// The user id is read from the request context set by the auth middleware.
func (pm *PermissionMiddleware) RequireAll(permissions ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := contextkeys.GetUserID(r.Context())
			if err := pm.enforcer.RequireAll(r.Context(), userID, permissions...); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatusCode maps an enforcement error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case IsForbidden(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// forbiddenResponse is the 403 body; it names the missing permission
type forbiddenResponse struct {
	Error      string     `json:"error"`
	Permission Permission `json:"permission"`
}

// WriteError translates an enforcement error into a JSON response
func WriteError(w http.ResponseWriter, err error) {
	var fe *ForbiddenError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "Unauthorized")
	case errors.As(err, &fe):
		_ = httputil.WriteJSON(w, http.StatusForbidden, forbiddenResponse{
			Error:      "Forbidden",
			Permission: fe.Permission,
		})
	case IsUnavailable(err):
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Authorization unavailable")
	default:
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}
