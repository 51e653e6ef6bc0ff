// Package rbac provides role-based access control for gatekeeper.
//
// # Overview
//
// Every user holds at most one role. A role is a named set of opaque
// permission tokens such as "users.read" or "products.create". Access to an
// operation is granted when the caller's role contains the permission the
// operation requires. There is no role hierarchy and no superuser bypass.
//
// # Components
//
//  1. Adapter: reads a user's role and a role's permissions from storage
//  2. Resolver: turns an authenticated user id into a PermissionSet
//  3. Enforcer: the server-side check (Require, RequireAll, Can)
//  4. PermissionMiddleware: wraps HTTP handlers with an Enforcer check
//
// Adapters can be decorated. NewInstrumentedAdapter records lookup latency,
// NewRetryingAdapter retries transient failures and NewCachingAdapter keeps a
// read-through LRU with a TTL. Decorators expose Unwrap so optional
// capabilities (RoleStore, UserRoleAssigner, Pinger, io.Closer) can be found
// with RoleStoreOf, AssignerOf, Ping and Close.
//
// # Resolution
//
//	resolver := rbac.NewResolver(adapter)
//	perms, err := resolver.Resolve(ctx, userID)
//
// An empty user id fails with ErrUnauthenticated. A user without a role, or
// whose role is missing or soft-deleted, resolves to the empty set. Storage
// failures surface as *AdapterError.
//
// # Enforcement
//
//	enforcer := rbac.NewEnforcer(resolver, rbac.WithLogger(logger))
//	if err := enforcer.Require(ctx, userID, "users.read"); err != nil {
//		rbac.WriteError(w, err) // 401, 403 or 500
//		return
//	}
//
// Denial is *ForbiddenError. A failed lookup is
// *AuthorizationUnavailableError, which wraps the *AdapterError and must never
// be read as a denial or a grant.
//
// # HTTP Middleware
//
//	pm := rbac.NewPermissionMiddleware(enforcer)
//	router.Handle("/api/users", pm.RequirePermission("users.read")(handler))
//
// The middleware reads the user id placed on the request context by the
// authentication middleware.
package rbac
