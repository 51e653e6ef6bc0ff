package sso

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/gatekeeper/pkg/middleware"
)

// OIDCConfig configures ID token verification
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// UserIDClaim names the claim used as the user id; "sub" by default
	UserIDClaim string
	// SkipIssuerCheck is for providers whose discovery document reports a
	// different issuer than the URL used to reach it
	SkipIssuerCheck bool
}

// Validate checks the configuration
func (c OIDCConfig) Validate() error {
	if c.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

func (c OIDCConfig) claim() string {
	if c.UserIDClaim == "" {
		return "sub"
	}
	return c.UserIDClaim
}

// OIDCAuthenticator verifies bearer ID tokens and maps them to user ids
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
	claim    string
}

// NewOIDCAuthenticator discovers the provider at cfg.IssuerURL and builds a
// verifier for cfg.ClientID
func NewOIDCAuthenticator(ctx context.Context, cfg OIDCConfig) (*OIDCAuthenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: cfg.SkipIssuerCheck,
	})
	return NewOIDCAuthenticatorWithVerifier(verifier, cfg.UserIDClaim), nil
}

// NewOIDCAuthenticatorWithVerifier wraps an existing verifier
func NewOIDCAuthenticatorWithVerifier(verifier *oidc.IDTokenVerifier, userIDClaim string) *OIDCAuthenticator {
	return &OIDCAuthenticator{
		verifier: verifier,
		claim:    OIDCConfig{UserIDClaim: userIDClaim}.claim(),
	}
}

// Name identifies the authenticator in logs
func (a *OIDCAuthenticator) Name() string {
	return "oidc"
}

// Authenticate verifies the request's bearer token
func (a *OIDCAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw, err := middleware.BearerToken(r)
	if err != nil {
		return "", err
	}
	return a.Verify(r.Context(), raw)
}

// Verify checks signature, issuer, audience and expiry of rawIDToken and
// returns the configured user id claim
func (a *OIDCAuthenticator) Verify(ctx context.Context, rawIDToken string) (string, error) {
	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", fmt.Errorf("failed to verify ID token: %w", err)
	}

	if a.claim == "sub" {
		if idToken.Subject == "" {
			return "", errors.New("missing subject in ID token")
		}
		return idToken.Subject, nil
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("failed to parse claims: %w", err)
	}

	userID := strings.TrimSpace(getStringValue(claims, a.claim))
	if userID == "" {
		return "", fmt.Errorf("missing %s claim in ID token", a.claim)
	}
	if a.claim == "email" {
		if verified, ok := claims["email_verified"].(bool); ok && !verified {
			return "", errors.New("email in ID token is not verified")
		}
	}
	return userID, nil
}

func getStringValue(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
