// Package storage builds the rbac.Adapter a process uses.
//
// # Overview
//
// A Config names the backend and its connection target. NewAdapter selects
// the backend, opens it and applies the configured decorators:
//
//	sqlstore    postgres://, postgresql://, sqlite://, file:
//	redisstore  redis://, rediss://
//	memory      memory://
//
// Decorators wrap from the inside out: instrumentation, retry, then the
// read-through cache. Optional capabilities of the backend stay reachable
// through rbac.RoleStoreOf and friends.
//
// # Adapter Cache
//
// Cache holds the one adapter a process shares. It is created in main and
// passed down; there is no package-level instance.
//
//	cache := storage.NewCache(storage.DefaultFactory(rbac.WithMetrics(m)))
//	defer cache.Close()
//	adapter, err := cache.Get(ctx, cfg)
//
// Concurrent first calls share one construction. A failed construction is
// not remembered, so the next call tries again. Asking for a different
// Config after the first success fails with *rbac.AdapterConfigError.
package storage
