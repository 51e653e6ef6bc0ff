// Package client fetches the current user's permissions from the permission
// query endpoint, for use by a server-rendered or CLI front end feeding
// pkg/gate.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// PermissionsPath is the permission query endpoint
const PermissionsPath = "/api/permissions"

// Config configures a PermissionsClient
type Config struct {
	BaseURL string
	Timeout time.Duration
	// TokenSource supplies the bearer token when Fetch is given none
	TokenSource oauth2.TokenSource
	Logger      *observability.Logger
}

// StatusError is returned for responses other than 200 and 401
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("permission query failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("permission query failed with status %d: %s", e.StatusCode, e.Message)
}

type permissionsResponse struct {
	Permissions rbac.PermissionSet `json:"permissions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PermissionsClient calls GET /api/permissions
type PermissionsClient struct {
	http   *resty.Client
	tokens oauth2.TokenSource
	logger *observability.Logger
}

// New creates a client for the server at cfg.BaseURL
func New(cfg Config) *PermissionsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &PermissionsClient{
		http:   rc,
		tokens: cfg.TokenSource,
		logger: logger,
	}
}

// Fetch returns the permission set of the user identified by token. An
// empty token falls back to the configured TokenSource. A 401 answer is
// rbac.ErrUnauthenticated; other failures are returned as errors.
func (c *PermissionsClient) Fetch(ctx context.Context, token string) (rbac.PermissionSet, error) {
	if token == "" && c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return rbac.PermissionSet{}, fmt.Errorf("failed to obtain token: %w", err)
		}
		token = tok.AccessToken
	}
	if token == "" {
		return rbac.PermissionSet{}, rbac.ErrUnauthenticated
	}

	var body permissionsResponse
	var errBody errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&body).
		SetError(&errBody).
		Get(PermissionsPath)
	if err != nil {
		return rbac.PermissionSet{}, fmt.Errorf("failed to query permissions: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return body.Permissions, nil
	case http.StatusUnauthorized:
		return rbac.PermissionSet{}, rbac.ErrUnauthenticated
	default:
		return rbac.PermissionSet{}, &StatusError{StatusCode: resp.StatusCode(), Message: errBody.Error}
	}
}

// Load is Fetch for rendering: any failure yields the empty set so the gate
// hides everything. Failures other than a missing login are logged.
func (c *PermissionsClient) Load(ctx context.Context, token string) rbac.PermissionSet {
	perms, err := c.Fetch(ctx, token)
	if err != nil {
		if !errors.Is(err, rbac.ErrUnauthenticated) {
			c.logger.WithError(err).Warn("failed to load permissions")
		}
		return rbac.PermissionSet{}
	}
	return perms
}
