package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// ErrNoCredentials reports that a request carried nothing for an
// authenticator to check
var ErrNoCredentials = errors.New("no credentials presented")

// ErrInvalidCredentials reports credentials that were presented but rejected
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator turns request credentials into a stable user id.
//
// It returns ErrNoCredentials when the request has none of the credentials
// it understands, and any other error when they are present but invalid.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
	Name() string
}

// HeaderAuthenticator trusts a user id set by an upstream proxy that has
// already authenticated the caller. Only use it behind such a proxy.
type HeaderAuthenticator struct {
	Header string
}

// NewHeaderAuthenticator creates an authenticator reading header
func NewHeaderAuthenticator(header string) *HeaderAuthenticator {
	if header == "" {
		header = "X-Authenticated-User"
	}
	return &HeaderAuthenticator{Header: header}
}

// Name identifies the authenticator in logs
func (a *HeaderAuthenticator) Name() string {
	return "header"
}

// Authenticate returns the header value
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw, present := r.Header[http.CanonicalHeaderKey(a.Header)]
	if !present {
		return "", ErrNoCredentials
	}
	userID := ""
	if len(raw) > 0 {
		userID = strings.TrimSpace(raw[0])
	}
	if userID == "" {
		return "", ErrInvalidCredentials
	}
	return userID, nil
}

// ChainAuthenticator tries each authenticator in order. The first one that
// finds credentials decides; if none does the request is unauthenticated.
type ChainAuthenticator []Authenticator

// Name identifies the authenticator in logs
func (c ChainAuthenticator) Name() string {
	return "chain"
}

// Authenticate runs the chain
func (c ChainAuthenticator) Authenticate(r *http.Request) (string, error) {
	userID, _, err := c.authenticate(r)
	return userID, err
}

func (c ChainAuthenticator) authenticate(r *http.Request) (string, string, error) {
	for _, a := range c {
		userID, err := a.Authenticate(r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		return userID, a.Name(), err
	}
	return "", "", ErrNoCredentials
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	authn  Authenticator
	logger *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authn Authenticator, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		authn:  authn,
		logger: logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, method, err := m.authenticate(r)
		switch {
		case errors.Is(err, ErrNoCredentials):
			next.ServeHTTP(w, r)
			return
		case err != nil:
			observability.FromContext(r.Context(), m.logger).
				WithError(err).
				WithField("authenticator", method).
				Debug("authentication failed")
			httputil.WriteUnauthorized(w, "Unauthorized")
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), userID)
		ctx = contextkeys.WithAuthMethod(ctx, method)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (string, string, error) {
	if chain, ok := m.authn.(ChainAuthenticator); ok {
		return chain.authenticate(r)
	}
	userID, err := m.authn.Authenticate(r)
	return userID, m.authn.Name(), err
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. A missing header or another scheme is ErrNoCredentials so other
// authenticators get a turn; a Bearer header with no token is
// ErrInvalidCredentials.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoCredentials
	}

	scheme, rest, _ := strings.Cut(authHeader, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoCredentials
	}
	token := strings.TrimSpace(rest)
	if token == "" {
		return "", ErrInvalidCredentials
	}
	return token, nil
}
