// Package middleware provides the HTTP middleware that sits in front of the
// authorization layer: request ids, request-scoped logging and
// authentication.
//
// Authentication only establishes who the caller is. The resulting user id is
// stored with contextkeys.WithUserID and read by rbac.PermissionMiddleware and
// the permission query endpoint.
//
// Ordering (outer to inner):
//
//	router.Use(middleware.RequestID)
//	router.Use(middleware.RequestLogger(logger))
//	router.Use(middleware.NewAuthMiddleware(authn, logger).Handler)
//
// A request without credentials passes through unauthenticated so public
// routes keep working; protected routes answer 401 themselves. Credentials
// that are present but invalid are rejected here with 401.
package middleware
