package cbc

import (
	"context"
	"errors"
	"fmt"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// CacheType names a response cache backend.
type CacheType string

// Supported backends.
const (
	CacheTypeNone   CacheType = "none"
	CacheTypeMemory CacheType = "memory"
	CacheTypeNATS   CacheType = "nats"
	CacheTypeRedis  CacheType = "redis"
)

// CacheConfig configures the response cache.
//
// With Type nats or redis the cache is shared between processes that use
// the same org. Setting Memory as well puts a process-local tier in front
// of the shared one.
type CacheConfig struct {
	Type CacheType

	Memory *MemoryCacheConfig
	NATS   *NATSKVConfig
	Redis  *RedisCacheConfig

	// Policy decides which responses are cached. Nil uses DefaultCachingPolicy.
	Policy *CachingPolicy
	// Options apply to every backend. Nil uses DefaultCacheOptions.
	Options *CacheOptions
}

// MemoryCacheConfig sizes the in-process cache.
type MemoryCacheConfig struct {
	MaxSize int
}

// DefaultCacheConfig returns a disabled cache configuration. Caching model
// GETs would defeat Refresh, so callers opt in explicitly.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type:    CacheTypeNone,
		Options: DefaultCacheOptions(),
	}
}

func (c *CacheConfig) enabled() bool {
	return c != nil && c.Type != CacheTypeNone && c.Type != ""
}

func (c *CacheConfig) memoryCache() *MemoryCache {
	if c.Memory != nil && c.Memory.MaxSize > 0 {
		return NewMemoryCache(c.Memory.MaxSize)
	}

	return NewMemoryCache(constants.DefaultCacheSize)
}

// NewCacheFromConfig builds the backend described by config. A nil or
// disabled config yields a NoOpCache.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if !config.enabled() {
		return NewNoOpCache(), nil
	}

	var (
		shared Cache
		err    error
	)

	switch config.Type {
	case CacheTypeMemory:
		return config.memoryCache(), nil
	case CacheTypeNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		shared, err = NewNATSKVCache(config.NATS)
	case CacheTypeRedis:
		if config.Redis == nil {
			return nil, ErrRedisConfigRequired
		}

		shared, err = NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCache, config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("creating %s cache: %w", config.Type, err)
	}

	if config.Memory != nil {
		return NewCacheChain(config.memoryCache(), shared), nil
	}

	return shared, nil
}

// NewCacheManagerFromConfig builds the backend, its manager and the policy
// to apply. A disabled config returns all nils.
func NewCacheManagerFromConfig(config *CacheConfig) (*CacheManager, *CachingPolicy, error) {
	if !config.enabled() {
		return nil, nil, nil
	}

	cache, err := NewCacheFromConfig(config)
	if err != nil {
		return nil, nil, err
	}

	policy := config.Policy
	if policy == nil {
		policy = DefaultCachingPolicy()
	}

	return NewCacheManager(cache, config.Options), policy, nil
}

// NoOpCache stores nothing.
type NoOpCache struct{}

// NewNoOpCache returns a NoOpCache.
func NewNoOpCache() *NoOpCache { return &NoOpCache{} }

// Get always fails with ErrCacheDisabled.
func (*NoOpCache) Get(context.Context, string) (*CacheEntry, error) { return nil, ErrCacheDisabled }

// Set discards entry.
func (*NoOpCache) Set(context.Context, string, *CacheEntry) error { return nil }

// Delete is a no-op.
func (*NoOpCache) Delete(context.Context, string) error { return nil }

// Clear is a no-op.
func (*NoOpCache) Clear(context.Context) error { return nil }

// Has is always false.
func (*NoOpCache) Has(context.Context, string) bool { return false }

// CacheChain layers caches from fastest to slowest. A hit in a slower tier
// is copied into the faster ones.
type CacheChain struct {
	tiers []Cache
}

// NewCacheChain creates a chain; tiers are consulted in order.
func NewCacheChain(tiers ...Cache) *CacheChain {
	return &CacheChain{tiers: tiers}
}

// Get returns the first hit, back-filling the tiers before it.
func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for i, tier := range c.tiers {
		entry, err := tier.Get(ctx, key)
		if err != nil {
			continue
		}

		for _, faster := range c.tiers[:i] {
			_ = faster.Set(ctx, key, entry)
		}

		return entry, nil
	}

	return nil, ErrKeyNotInAnyCache
}

// Set writes entry to every tier and joins the failures.
func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return c.each(func(tier Cache) error { return tier.Set(ctx, key, entry) })
}

// Delete removes key from every tier.
func (c *CacheChain) Delete(ctx context.Context, key string) error {
	return c.each(func(tier Cache) error { return tier.Delete(ctx, key) })
}

// Clear empties every tier.
func (c *CacheChain) Clear(ctx context.Context) error {
	return c.each(func(tier Cache) error { return tier.Clear(ctx) })
}

// Has reports whether any tier holds key.
func (c *CacheChain) Has(ctx context.Context, key string) bool {
	for _, tier := range c.tiers {
		if tier.Has(ctx, key) {
			return true
		}
	}

	return false
}

// Close closes the tiers that hold connections.
func (c *CacheChain) Close() error {
	return c.each(func(tier Cache) error {
		if closer, ok := tier.(interface{ Close() error }); ok {
			return closer.Close()
		}

		return nil
	})
}

func (c *CacheChain) each(fn func(Cache) error) error {
	var errs []error

	for _, tier := range c.tiers {
		err := fn(tier)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
