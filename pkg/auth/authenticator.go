package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/middleware"
)

// TokenAuthenticator accepts API bearer tokens whose SHA256 hash is
// registered to a user id. Bearer tokens without TokenPrefix are left for
// the next authenticator in a chain.
type TokenAuthenticator struct {
	generator *TokenGenerator
	users     map[string]string // token hash -> user id
}

// NewTokenAuthenticator creates an authenticator from hash to user id
// entries
func NewTokenAuthenticator(hashes map[string]string) *TokenAuthenticator {
	users := make(map[string]string, len(hashes))
	for hash, userID := range hashes {
		users[strings.ToLower(hash)] = userID
	}
	return &TokenAuthenticator{generator: NewTokenGenerator(), users: users}
}

// ParseTokenEntries reads "userID=sha256hex" entries as produced by
// gatekeeper-cli token
func ParseTokenEntries(entries []string) (map[string]string, error) {
	hashes := make(map[string]string, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		i := strings.LastIndex(entry, "=")
		if i <= 0 {
			return nil, fmt.Errorf("api token entry %q must be userID=sha256", entry)
		}
		userID, hash := strings.TrimSpace(entry[:i]), strings.ToLower(strings.TrimSpace(entry[i+1:]))
		if len(hash) != 64 || strings.Trim(hash, "0123456789abcdef") != "" {
			return nil, fmt.Errorf("api token entry for %q has an invalid hash", userID)
		}
		if _, dup := hashes[hash]; dup {
			return nil, fmt.Errorf("api token hash registered twice")
		}
		hashes[hash] = userID
	}
	return hashes, nil
}

// Name identifies the authenticator in logs
func (a *TokenAuthenticator) Name() string {
	return "api_token"
}

// Authenticate resolves the bearer token to its registered user id
func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, error) {
	token, err := middleware.BearerToken(r)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", middleware.ErrNoCredentials
	}
	if err := a.generator.ValidateTokenFormat(token); err != nil {
		return "", fmt.Errorf("%w: %v", middleware.ErrInvalidCredentials, err)
	}

	userID, ok := a.users[a.generator.HashToken(token)]
	if !ok {
		return "", middleware.ErrInvalidCredentials
	}
	return userID, nil
}
