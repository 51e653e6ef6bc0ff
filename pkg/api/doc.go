// Package api serves the gatekeeper HTTP surface.
//
// Routes:
//
//	GET    /api/permissions           current user's permissions (authenticated)
//	GET    /api/{resource}            requires {resource}.read
//	POST   /api/{resource}            requires {resource}.create
//	GET    /api/admin/roles           requires roles.read
//	GET    /api/admin/roles/{name}    requires roles.read
//	POST   /api/admin/roles           requires roles.create
//	PUT    /api/admin/roles/{name}    requires roles.update
//	DELETE /api/admin/roles/{name}    requires roles.delete
//	PUT    /api/admin/users/{id}/role requires users.update
//
// Every enforced route goes through rbac.PermissionMiddleware, so a missing
// login is 401, a denial is 403 naming the permission, and an unreachable
// adapter is 500.
package api
