package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const flightKey = "adapter"

// Cache constructs the process's adapter once and hands the same instance
// to every caller. The zero value is not usable; call NewCache.
type Cache struct {
	factory Factory
	group   singleflight.Group

	mu      sync.Mutex
	adapter rbac.Adapter
	config  Config
}

// NewCache creates an empty cache that builds adapters with factory
func NewCache(factory Factory) *Cache {
	if factory == nil {
		factory = DefaultFactory()
	}
	return &Cache{factory: factory}
}

// Get returns the cached adapter, constructing it on first use.
//
// Concurrent first calls share one construction, which runs detached from
// any single caller's cancellation; each waiter still returns when its own
// context ends. Construction errors are returned and not remembered. A
// config that differs from the one the adapter was built with fails with
// *rbac.AdapterConfigError.
func (c *Cache) Get(ctx context.Context, cfg Config) (rbac.Adapter, error) {
	if adapter, ok, err := c.lookup(cfg); ok {
		return adapter, err
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		built := flight{config: cfg}
		if adapter, ok, err := c.lookup(cfg); ok {
			built.adapter = adapter
			return built, err
		}

		adapter, err := c.factory(buildCtx, cfg)
		if err != nil {
			return built, err
		}

		c.mu.Lock()
		c.adapter = adapter
		c.config = cfg
		c.mu.Unlock()
		built.adapter = adapter
		return built, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for adapter construction: %w", ctx.Err())
	case res := <-ch:
		// The flight may have been started by a caller with another config
		built, _ := res.Val.(flight)
		if built.config != cfg {
			return nil, configMismatch()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return built.adapter, nil
	}
}

// flight is the result of one shared construction, tagged with the config
// it ran for
type flight struct {
	config  Config
	adapter rbac.Adapter
}

func configMismatch() error {
	return &rbac.AdapterConfigError{
		Field:  "config",
		Reason: "adapter already constructed with a different configuration",
	}
}

// lookup reports whether an adapter is held, and whether cfg matches it
func (c *Cache) lookup(cfg Config) (rbac.Adapter, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adapter == nil {
		return nil, false, nil
	}
	if c.config != cfg {
		return nil, true, configMismatch()
	}
	return c.adapter, true, nil
}

// Loaded returns the held adapter without constructing one
func (c *Cache) Loaded() (rbac.Adapter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter, c.adapter != nil
}

// Close releases the held adapter. A later Get constructs a new one.
func (c *Cache) Close() error {
	c.mu.Lock()
	adapter := c.adapter
	c.adapter = nil
	c.config = Config{}
	c.mu.Unlock()

	if adapter == nil {
		return nil
	}
	return rbac.Close(adapter)
}
