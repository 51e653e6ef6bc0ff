package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
)

const userHeader = "X-Authenticated-User"

type testServer struct {
	*Server
	store *memory.Store
}

// newTestServer seeds the three demo roles and users
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	roles := map[string][]rbac.Permission{
		"admin": rbac.DefaultVocabulary().Permissions(),
		"manager": {"users.read", "products.create", "products.read", "products.update"},
		"user":    {"users.read", "products.read"},
	}
	for name, perms := range roles {
		require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: name, Permissions: perms}))
	}
	for id, role := range map[string]string{
		"admin@example.com":   "admin",
		"manager@example.com": "manager",
		"user@example.com":    "user",
	} {
		require.NoError(t, store.AssignUserRole(ctx, id, role))
	}

	return &testServer{Server: serverFor(store), store: store}
}

func serverFor(adapter rbac.Adapter) *Server {
	resolver := rbac.NewResolver(adapter)
	return NewServer(Config{
		Resolver:      resolver,
		Enforcer:      rbac.NewEnforcer(resolver),
		Authenticator: middleware.NewHeaderAuthenticator(userHeader),
		Vocabulary:    rbac.DefaultVocabulary(),
		Resources:     DemoResources(),
	})
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func unavailableAdapter() rbac.Adapter {
	return rbac.AdapterFunc{
		UserRole: func(context.Context, string) (string, bool, error) {
			return "", false, errors.New("connection refused")
		},
		RolePermissions: func(context.Context, string) (rbac.PermissionSet, error) {
			return rbac.PermissionSet{}, nil
		},
	}
}

func TestPermissionsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	t.Run("unauthenticated", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/permissions", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
	})

	t.Run("user role", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/permissions", "user@example.com", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"permissions":["products.read","users.read"]}`, rr.Body.String())
	})

	t.Run("no role assigned", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/permissions", "stranger@example.com", "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"permissions":[]}`, rr.Body.String())
	})

	t.Run("deleted role", func(t *testing.T) {
		require.NoError(t, srv.store.CreateRole(context.Background(), &rbac.Role{Name: "temp", Permissions: []rbac.Permission{"users.read"}}))
		require.NoError(t, srv.store.AssignUserRole(context.Background(), "temp@example.com", "temp"))
		require.NoError(t, srv.store.SoftDeleteRole(context.Background(), "temp"))

		rr := do(t, srv, http.MethodGet, "/api/permissions", "temp@example.com", "")
		assert.JSONEq(t, `{"permissions":[]}`, rr.Body.String())
	})

	t.Run("adapter failure", func(t *testing.T) {
		rr := do(t, serverFor(unavailableAdapter()), http.MethodGet, "/api/permissions", "user@example.com", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"Failed to fetch permissions"}`, rr.Body.String())
	})
}

func TestEnforcedResources(t *testing.T) {
	srv := newTestServer(t)

	t.Run("user can read products", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/products", "user@example.com", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var items []Item
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
		assert.Len(t, items, 2)
	})

	t.Run("user cannot create products", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/products", "user@example.com", `{"name":"Widget C"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"Forbidden","permission":"products.create"}`, rr.Body.String())
	})

	t.Run("manager creates products", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/products", "manager@example.com", `{"name":"Widget C","price":9.5}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		var created Item
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
		assert.Equal(t, "Widget C", created["name"])
		assert.NotEmpty(t, created["id"])
	})

	t.Run("manager cannot create users", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/users", "manager@example.com", `{"name":"Eve"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/users", "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("no role gets 403", func(t *testing.T) {
		rr := do(t, srv, http.MethodGet, "/api/users", "stranger@example.com", "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/api/products", "admin@example.com", `[1,2]`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("adapter unavailable is not a denial", func(t *testing.T) {
		rr := do(t, serverFor(unavailableAdapter()), http.MethodGet, "/api/products", "user@example.com", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"Authorization unavailable"}`, rr.Body.String())
	})
}

// Revoking a permission takes effect on the next check once the cache is
// bypassed by the write path
func TestRoleUpdateReflectedThroughCache(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "admin", Permissions: rbac.DefaultVocabulary().Permissions()}))
	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "user", Permissions: []rbac.Permission{"products.read"}}))
	require.NoError(t, store.AssignUserRole(ctx, "admin@example.com", "admin"))
	require.NoError(t, store.AssignUserRole(ctx, "user@example.com", "user"))

	srv := serverFor(rbac.NewCachingAdapter(store, 100, time.Minute))

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/products", "user@example.com", "").Code)

	rr := do(t, srv, http.MethodPut, "/api/admin/roles/user", "admin@example.com", `{"permissions":["users.read"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/api/products", "user@example.com", "").Code)
}

func TestNewOpsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	checker := observability.NewHealthChecker("test")
	checker.Register("adapter", observability.PingerFunc(func(context.Context) error { return nil }), true)

	store := memory.New()
	resolver := rbac.NewResolver(store, rbac.WithMetrics(metrics))
	srv := NewServer(Config{
		Resolver:      resolver,
		Authenticator: middleware.NewHeaderAuthenticator(userHeader),
		Metrics:       metrics,
	})
	do(t, srv, http.MethodGet, "/api/permissions", "nobody", "")

	ops := NewOpsHandler(checker, registry)

	rr := do(t, ops, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, ops, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `gatekeeper_http_requests_total{method="GET",route="/api/permissions",status="200"} 1`)
	assert.Contains(t, rr.Body.String(), `gatekeeper_resolutions_total{result="empty"} 1`)
}

func TestHandler_OTelWrapped(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv.Handler(), http.MethodGet, "/api/permissions", "admin@example.com", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
