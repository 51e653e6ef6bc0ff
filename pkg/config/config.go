package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/sso"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
)

// EnvPrefix prefixes every environment variable the service reads
const EnvPrefix = "GATEKEEPER"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	RBAC          RBACConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `default:"0.0.0.0"`
	Port            string        `default:"8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"15s"`
	IdleTimeout     time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `split_words:"true" default:"9090"`

	// DemoResources mounts the sample users/products collections
	DemoResources bool `split_words:"true" default:"true"`
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the ops listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// AuthConfig selects how requests are authenticated
type AuthConfig struct {
	// TrustedHeader names the header a fronting proxy sets with the user id.
	// Empty disables header authentication.
	TrustedHeader string `split_words:"true" default:"X-Authenticated-User"`

	// APITokens holds "userID=sha256" entries for service callers
	APITokens []string `envconfig:"API_TOKENS"`

	OIDCEnabled     bool   `envconfig:"OIDC_ENABLED"`
	OIDCIssuerURL   string `envconfig:"OIDC_ISSUER_URL"`
	OIDCClientID    string `envconfig:"OIDC_CLIENT_ID"`
	OIDCUserIDClaim string `envconfig:"OIDC_USER_ID_CLAIM" default:"sub"`
}

// OIDC returns the authenticator configuration
func (a AuthConfig) OIDC() sso.OIDCConfig {
	return sso.OIDCConfig{
		IssuerURL:   a.OIDCIssuerURL,
		ClientID:    a.OIDCClientID,
		UserIDClaim: a.OIDCUserIDClaim,
	}
}

// RBACConfig declares the permission vocabulary role writes are checked
// against. Empty leaves it open; "default" selects the bundled demo list.
type RBACConfig struct {
	Permissions []string
}

// Vocabulary returns the configured vocabulary, nil when open
func (c RBACConfig) Vocabulary() *rbac.Vocabulary {
	if len(c.Permissions) == 0 {
		return nil
	}
	if len(c.Permissions) == 1 && c.Permissions[0] == "default" {
		return rbac.DefaultVocabulary()
	}
	perms := make([]rbac.Permission, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		perms = append(perms, rbac.Permission(strings.TrimSpace(p)))
	}
	return rbac.NewVocabulary(perms...)
}

// AuditConfig controls where role administration events are written.
// Events always go to the application log; Dir adds a rotated JSON file.
type AuditConfig struct {
	Dir      string `split_words:"true"`
	MaxSize  int64  `split_words:"true" default:"104857600"`
	MaxFiles int    `split_words:"true" default:"10"`

	// BufferSize queues events for a background writer; 0 writes inline
	BufferSize int `split_words:"true" default:"256"`
}

// File returns the file logger configuration
func (a AuditConfig) File() audit.FileLoggerConfig {
	return audit.FileLoggerConfig{BasePath: a.Dir, MaxSize: a.MaxSize, MaxFiles: a.MaxFiles}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"json"`

	MetricsEnabled bool `split_words:"true" default:"true"`

	OTelEnabled        bool    `envconfig:"OTEL_ENABLED"`
	OTelEndpoint       string  `envconfig:"OTEL_ENDPOINT"`
	OTelServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"gatekeeper"`
	OTelServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"dev"`
	OTelInsecure       bool    `envconfig:"OTEL_INSECURE" default:"true"`
	OTelSampleRatio    float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Format returns the log handler format; Validate rejects unknown values
func (o ObservabilityConfig) Format() observability.LogFormat {
	f, err := observability.ParseLogFormat(o.LogFormat)
	if err != nil {
		return observability.FormatJSON
	}
	return f
}

// OTel returns the tracing and metrics export configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from GATEKEEPER_* environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Auth.OIDCEnabled {
		if err := c.Auth.OIDC().Validate(); err != nil {
			return fmt.Errorf("oidc: %w", err)
		}
	}
	if _, err := auth.ParseTokenEntries(c.Auth.APITokens); err != nil {
		return err
	}
	if !c.Auth.OIDCEnabled && c.Auth.TrustedHeader == "" && len(c.Auth.APITokens) == 0 {
		return fmt.Errorf("no authenticator configured: set a trusted header, API tokens or enable OIDC")
	}

	for _, p := range c.RBAC.Permissions {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("rbac permissions must not contain empty entries")
		}
	}

	if c.Audit.Dir != "" && c.Audit.MaxFiles < 0 {
		return fmt.Errorf("audit max files must not be negative")
	}
	if c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit buffer size must not be negative")
	}

	if _, err := observability.ParseLogFormat(c.Observability.LogFormat); err != nil {
		return err
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}
