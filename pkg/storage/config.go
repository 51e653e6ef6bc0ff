package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/sqlstore"
)

// Backend types
const (
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
	TypeRedis    = "redis"
	TypeMemory   = "memory"
)

// Config describes how to reach the adapter's backing store. It is
// comparable so the adapter cache can detect a changed configuration.
type Config struct {
	// Type selects the backend; empty infers it from ConnectionTarget's scheme
	Type             string `split_words:"true"`
	ConnectionTarget string `split_words:"true"`
	RoleCollection   string `split_words:"true" default:"roles"`
	UserCollection   string `split_words:"true" default:"users"`
	KeyPrefix        string `split_words:"true"`

	MaxOpenConns    int           `split_words:"true" default:"20"`
	MaxIdleConns    int           `split_words:"true" default:"2"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	ConnectTimeout  time.Duration `split_words:"true" default:"10s"`

	// MaxRetries bounds retries of transient lookup failures; 0 disables retry
	MaxRetries int `split_words:"true" default:"2"`

	CacheEnabled bool          `split_words:"true" default:"true"`
	CacheSize    int           `split_words:"true" default:"1024"`
	CacheTTL     time.Duration `split_words:"true" default:"30s"`

	AutoMigrate bool `split_words:"true"`
}

// DefaultConfig returns the defaults used when reading from the environment
func DefaultConfig() Config {
	return Config{
		RoleCollection:  "roles",
		UserCollection:  "users",
		MaxOpenConns:    20,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		MaxRetries:      2,
		CacheEnabled:    true,
		CacheSize:       1024,
		CacheTTL:        30 * time.Second,
	}
}

// Backend returns the backend type, inferring it from the connection
// target's scheme when Type is empty
func (c Config) Backend() (string, error) {
	if c.Type != "" {
		switch t := strings.ToLower(c.Type); t {
		case TypePostgres, TypeSQLite, TypeRedis, TypeMemory:
			return t, nil
		case "postgresql":
			return TypePostgres, nil
		case "sqlite3":
			return TypeSQLite, nil
		default:
			return "", &rbac.AdapterConfigError{Field: "type", Reason: fmt.Sprintf("unknown backend %q", c.Type)}
		}
	}

	target := strings.ToLower(c.ConnectionTarget)
	switch {
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		return TypePostgres, nil
	case strings.HasPrefix(target, "sqlite://"), strings.HasPrefix(target, "file:"):
		return TypeSQLite, nil
	case strings.HasPrefix(target, "redis://"), strings.HasPrefix(target, "rediss://"):
		return TypeRedis, nil
	case strings.HasPrefix(target, "memory:"):
		return TypeMemory, nil
	default:
		return "", &rbac.AdapterConfigError{
			Field:  "connection_target",
			Reason: "cannot infer backend from scheme; set the storage type",
		}
	}
}

// Validate checks the configuration without connecting
func (c Config) Validate() error {
	if strings.TrimSpace(c.ConnectionTarget) == "" {
		return &rbac.AdapterConfigError{Field: "connection_target", Reason: "required"}
	}

	backend, err := c.Backend()
	if err != nil {
		return err
	}

	if backend == TypePostgres || backend == TypeSQLite {
		for field, name := range map[string]string{
			"role_collection": c.roleCollection(),
			"user_collection": c.userCollection(),
		} {
			if !sqlstore.ValidIdentifier(name) {
				return &rbac.AdapterConfigError{Field: field, Reason: fmt.Sprintf("invalid table name %q", name)}
			}
		}
	}

	if c.roleCollection() == c.userCollection() {
		return &rbac.AdapterConfigError{Field: "user_collection", Reason: "must differ from role_collection"}
	}
	if c.MaxRetries < 0 {
		return &rbac.AdapterConfigError{Field: "max_retries", Reason: "must not be negative"}
	}
	if c.CacheEnabled && c.CacheSize < 0 {
		return &rbac.AdapterConfigError{Field: "cache_size", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) roleCollection() string {
	if c.RoleCollection == "" {
		return "roles"
	}
	return c.RoleCollection
}

func (c Config) userCollection() string {
	if c.UserCollection == "" {
		return "users"
	}
	return c.UserCollection
}

// sqliteDSN turns sqlite://path into a path go-sqlite3 understands.
// file: URIs pass through unchanged.
func sqliteDSN(target string) string {
	if strings.HasPrefix(strings.ToLower(target), "sqlite://") {
		return target[len("sqlite://"):]
	}
	return target
}

// Redacted returns the connection target with any password masked, for logs
func (c Config) Redacted() string {
	target := c.ConnectionTarget
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return target
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return target
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return target
}
