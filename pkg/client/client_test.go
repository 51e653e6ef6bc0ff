package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func permissionsServer(t *testing.T, handler http.HandlerFunc) *PermissionsClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL})
}

func TestFetch_Success(t *testing.T) {
	c := permissionsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PermissionsPath, r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"permissions":["products.read","users.read"]}`))
	})

	perms, err := c.Fetch(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"products.read", "users.read"}, perms.Strings())
}

func TestFetch_TokenSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer from-source", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"permissions":[]}`))
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:     srv.URL,
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "from-source"}),
	})

	perms, err := c.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, perms.IsEmpty())
}

func TestFetch_Errors(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		c := New(Config{BaseURL: "http://127.0.0.1:1"})
		_, err := c.Fetch(context.Background(), "")
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})

	t.Run("401", func(t *testing.T) {
		c := permissionsServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
		})
		_, err := c.Fetch(context.Background(), "expired")
		assert.ErrorIs(t, err, rbac.ErrUnauthenticated)
	})

	t.Run("500", func(t *testing.T) {
		c := permissionsServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed to fetch permissions"}`))
		})
		_, err := c.Fetch(context.Background(), "tok")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "Failed to fetch permissions", statusErr.Message)
	})
}

func TestLoad_EmptyOnFailure(t *testing.T) {
	c := permissionsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	perms := c.Load(context.Background(), "tok")
	assert.True(t, perms.IsEmpty())

	unreachable := New(Config{BaseURL: "http://127.0.0.1:1"})
	assert.True(t, unreachable.Load(context.Background(), "tok").IsEmpty())
}
