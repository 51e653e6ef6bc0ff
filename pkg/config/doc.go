/*
Package config loads service configuration from GATEKEEPER_* environment
variables.

Nested sections map to variable name segments:

	GATEKEEPER_SERVER_PORT=8080
	GATEKEEPER_SERVER_HEALTH_PORT=9090
	GATEKEEPER_STORAGE_CONNECTION_TARGET=postgres://app:secret@db:5432/rbac
	GATEKEEPER_STORAGE_CACHE_TTL=30s
	GATEKEEPER_AUTH_TRUSTED_HEADER=X-Authenticated-User
	GATEKEEPER_AUTH_OIDC_ENABLED=true
	GATEKEEPER_AUTH_OIDC_ISSUER_URL=https://accounts.example.com
	GATEKEEPER_AUTH_OIDC_CLIENT_ID=gatekeeper
	GATEKEEPER_RBAC_PERMISSIONS=default
	GATEKEEPER_AUDIT_DIR=/var/log/gatekeeper
	GATEKEEPER_AUDIT_BUFFER_SIZE=256
	GATEKEEPER_OBSERVABILITY_LOG_LEVEL=debug
	GATEKEEPER_OBSERVABILITY_LOG_FORMAT=text
	GATEKEEPER_OBSERVABILITY_OTEL_ENABLED=true
	GATEKEEPER_OBSERVABILITY_OTEL_ENDPOINT=collector:4317

LoadConfig validates before returning, so a misconfigured adapter fails at
startup instead of on the first authorization check.
*/
package config
