// Package auth provides API tokens for service callers that cannot obtain
// an OIDC ID token.
//
// Tokens look like gk_<base64url(32 random bytes)>. The server only holds
// their SHA256 hashes, configured as "userID=hash" entries:
//
//	$ gatekeeper-cli token -user ci@example.com
//	token: gk_3q2-7wAAAAB...
//	GATEKEEPER_AUTH_API_TOKENS=ci@example.com=9f86d081884c7d65...
//
// TokenAuthenticator resolves a presented bearer token to its user id; the
// user's role then decides what the token may do like any other caller.
package auth
