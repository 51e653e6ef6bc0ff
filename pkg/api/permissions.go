package api

import (
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// PermissionsResponse is the body of GET /api/permissions
type PermissionsResponse struct {
	Permissions rbac.PermissionSet `json:"permissions"`
}

// PermissionsHandler answers GET /api/permissions with the caller's
// permission set. It is a read-only view for the client gate; it grants
// nothing by itself.
type PermissionsHandler struct {
	resolver *rbac.Resolver
	logger   *observability.Logger
}

// NewPermissionsHandler creates the handler
func NewPermissionsHandler(resolver *rbac.Resolver, logger *observability.Logger) *PermissionsHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &PermissionsHandler{resolver: resolver, logger: logger}
}

func (h *PermissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}

	perms, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		observability.FromContext(r.Context(), h.logger).
			WithError(err).
			Error("Failed to fetch permissions")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to fetch permissions")
		return
	}

	_ = httputil.WriteSuccess(w, PermissionsResponse{Permissions: perms})
}
