package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

var roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidRoleName reports whether name can be stored by every adapter
func ValidRoleName(name string) bool {
	return roleNamePattern.MatchString(name)
}

type createRoleRequest struct {
	Name        string            `json:"name"`
	Permissions []rbac.Permission `json:"permissions"`
}

type updateRoleRequest struct {
	Permissions []rbac.Permission `json:"permissions"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

type rolesResponse struct {
	Roles []*rbac.Role `json:"roles"`
}

func (s *Server) registerAdminRoutes() {
	admin := s.router.PathPrefix("/api/admin").Subrouter()

	admin.Handle("/roles", s.perms.RequirePermission("roles.read")(http.HandlerFunc(s.listRoles))).Methods(http.MethodGet)
	admin.Handle("/roles", s.perms.RequirePermission("roles.create")(http.HandlerFunc(s.createRole))).Methods(http.MethodPost)
	admin.Handle("/roles/{name}", s.perms.RequirePermission("roles.read")(http.HandlerFunc(s.getRole))).Methods(http.MethodGet)
	admin.Handle("/roles/{name}", s.perms.RequirePermission("roles.update")(http.HandlerFunc(s.updateRole))).Methods(http.MethodPut)
	admin.Handle("/roles/{name}", s.perms.RequirePermission("roles.delete")(http.HandlerFunc(s.deleteRole))).Methods(http.MethodDelete)
	admin.Handle("/users/{id}/role", s.perms.RequirePermission("users.update")(http.HandlerFunc(s.assignUserRole))).Methods(http.MethodPut)
}

// roleStore returns the adapter's RoleStore or writes a 501
func (s *Server) roleStore(w http.ResponseWriter) (rbac.RoleStore, bool) {
	store, ok := rbac.RoleStoreOf(s.resolver.Adapter())
	if !ok {
		httputil.WriteNotImplemented(w, "Role administration is not supported by this adapter")
		return nil, false
	}
	return store, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, name string) {
	switch {
	case errors.Is(err, rbac.ErrRoleNotFound):
		httputil.WriteNotFound(w, fmt.Sprintf("role %q not found", name))
	case errors.Is(err, rbac.ErrRoleExists):
		httputil.WriteConflict(w, fmt.Sprintf("role %q already exists", name))
	case errors.Is(err, rbac.ErrReadOnly):
		httputil.WriteNotImplemented(w, "Role administration is not supported by this adapter")
	default:
		s.internalError(w, r, err, "Role store operation failed")
	}
}

// record writes an audit event for a store write; writeErr marks it failed.
// A failing audit sink is logged and never fails the request.
func (s *Server) record(r *http.Request, eventType audit.EventType, message string, writeErr error, fill func(*audit.Event)) {
	status := audit.EventStatusSuccess
	if writeErr != nil {
		status = audit.EventStatusFailure
	}
	event := audit.NewEvent(r, eventType, status)
	event.Message = message
	if writeErr != nil {
		event.ErrorMessage = writeErr.Error()
	}
	fill(event)
	if err := s.audit.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context(), s.logger).WithError(err).Warn("failed to write audit event")
	}
}

func (s *Server) validatePermissions(w http.ResponseWriter, perms []rbac.Permission) bool {
	if err := s.vocabulary.Validate(perms); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	store, ok := s.roleStore(w)
	if !ok {
		return
	}

	includeDeleted := r.URL.Query().Get("all") == "true"
	roles, err := store.ListRoles(r.Context(), includeDeleted)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	if roles == nil {
		roles = []*rbac.Role{}
	}
	_ = httputil.WriteSuccess(w, rolesResponse{Roles: roles})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	store, ok := s.roleStore(w)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	role, err := store.GetRole(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, r, err, name)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	store, ok := s.roleStore(w)
	if !ok {
		return
	}

	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := &rbac.Role{Name: req.Name, Permissions: req.Permissions}
	role.Normalize()
	if !ValidRoleName(role.Name) {
		httputil.WriteBadRequest(w, "name must be 1-64 letters, digits, '.', '_' or '-'")
		return
	}
	if !s.validatePermissions(w, role.Permissions) {
		return
	}

	err := store.CreateRole(r.Context(), role)
	s.record(r, audit.EventTypeRoleCreate, "role created", err, func(e *audit.Event) {
		e.Role = role.Name
		e.Changes = &audit.ChangeDetails{After: role.Permissions}
	})
	if err != nil {
		s.writeStoreError(w, r, err, role.Name)
		return
	}

	created, err := store.GetRole(r.Context(), role.Name)
	if err != nil {
		s.writeStoreError(w, r, err, role.Name)
		return
	}
	_ = httputil.WriteCreated(w, created)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	store, ok := s.roleStore(w)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role := rbac.Role{Name: name, Permissions: req.Permissions}
	role.Normalize()
	if !s.validatePermissions(w, role.Permissions) {
		return
	}

	var before []rbac.Permission
	if current, err := store.GetRole(r.Context(), name); err == nil {
		before = current.Permissions
	}
	err := store.UpdateRolePermissions(r.Context(), name, role.Permissions)
	s.record(r, audit.EventTypeRoleUpdate, "role permissions updated", err, func(e *audit.Event) {
		e.Role = name
		e.Changes = &audit.ChangeDetails{Before: before, After: role.Permissions}
	})
	if err != nil {
		s.writeStoreError(w, r, err, name)
		return
	}

	updated, err := store.GetRole(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, r, err, name)
		return
	}
	_ = httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	store, ok := s.roleStore(w)
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	err := store.SoftDeleteRole(r.Context(), name)
	s.record(r, audit.EventTypeRoleDelete, "role deleted", err, func(e *audit.Event) {
		e.Role = name
	})
	if err != nil {
		s.writeStoreError(w, r, err, name)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) assignUserRole(w http.ResponseWriter, r *http.Request) {
	assigner, ok := rbac.AssignerOf(s.resolver.Adapter())
	if !ok {
		httputil.WriteNotImplemented(w, "Role assignment is not supported by this adapter")
		return
	}
	userID := strings.TrimSpace(mux.Vars(r)["id"])
	if userID == "" {
		httputil.WriteBadRequest(w, "missing path parameter: id")
		return
	}

	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Role = strings.TrimSpace(req.Role)

	// An empty role clears the assignment; otherwise the role must be active
	if req.Role != "" {
		if store, ok := rbac.RoleStoreOf(s.resolver.Adapter()); ok {
			role, err := store.GetRole(r.Context(), req.Role)
			if err == nil && role.IsDeleted() {
				err = rbac.ErrRoleNotFound
			}
			if err != nil {
				s.writeStoreError(w, r, err, req.Role)
				return
			}
		}
	}

	err := assigner.AssignUserRole(r.Context(), userID, req.Role)
	s.record(r, audit.EventTypeRoleAssign, "user role assigned", err, func(e *audit.Event) {
		e.Subject = userID
		e.Role = req.Role
	})
	if err != nil {
		s.writeStoreError(w, r, err, req.Role)
		return
	}
	httputil.WriteNoContent(w)
}
