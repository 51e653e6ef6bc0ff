package storage

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage/memory"
	"github.com/platinummonkey/gatekeeper/pkg/storage/redisstore"
	"github.com/platinummonkey/gatekeeper/pkg/storage/sqlstore"
)

// Factory constructs an adapter from a configuration
type Factory func(ctx context.Context, cfg Config) (rbac.Adapter, error)

// DefaultFactory returns a Factory that calls NewAdapter with opts
func DefaultFactory(opts ...rbac.Option) Factory {
	return func(ctx context.Context, cfg Config) (rbac.Adapter, error) {
		return NewAdapter(ctx, cfg, opts...)
	}
}

// NewAdapter opens the configured backend and wraps it with
// instrumentation, retry and caching as configured
func NewAdapter(ctx context.Context, cfg Config, opts ...rbac.Option) (rbac.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	base, err := openBackend(ctx, backend, cfg)
	if err != nil {
		return nil, err
	}

	var adapter rbac.Adapter = rbac.NewInstrumentedAdapter(base, backend, opts...)
	if cfg.MaxRetries > 0 {
		adapter = rbac.NewRetryingAdapter(adapter, cfg.MaxRetries)
	}
	if cfg.CacheEnabled {
		adapter = rbac.NewCachingAdapter(adapter, cfg.CacheSize, cfg.CacheTTL, opts...)
	}
	return adapter, nil
}

func openBackend(ctx context.Context, backend string, cfg Config) (rbac.Adapter, error) {
	switch backend {
	case TypePostgres:
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:          sqlstore.DriverPostgres,
			DSN:             cfg.ConnectionTarget,
			RolesTable:      cfg.RoleCollection,
			UsersTable:      cfg.UserCollection,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
			AutoMigrate:     cfg.AutoMigrate,
		})
	case TypeSQLite:
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:          sqlstore.DriverSQLite,
			DSN:             sqliteDSN(cfg.ConnectionTarget),
			RolesTable:      cfg.RoleCollection,
			UsersTable:      cfg.UserCollection,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
			AutoMigrate:     cfg.AutoMigrate,
		})
	case TypeRedis:
		return redisstore.Open(ctx, redisstore.Config{
			URL:            cfg.ConnectionTarget,
			KeyPrefix:      cfg.KeyPrefix,
			RolesKey:       cfg.RoleCollection,
			UsersKey:       cfg.UserCollection,
			PoolSize:       cfg.MaxOpenConns,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	case TypeMemory:
		return memory.New(), nil
	default:
		return nil, &rbac.AdapterConfigError{Field: "type", Reason: "unsupported backend " + backend}
	}
}
