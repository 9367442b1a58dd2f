package api

import (
	"context"
	"fmt"
	"time"

	"github.com/dirtysats/fleetd/internal/pool"
)

// defaultPoolConfigTTL bounds how stale a cached pool config can get if an
// invalidation is lost.
const defaultPoolConfigTTL = 5 * time.Minute

// ConfigCache is the subset of the Redis client the pool-config cache needs.
type ConfigCache interface {
	GetCache(ctx context.Context, key string, dest any) (bool, error)
	SetCache(ctx context.Context, key string, data any, expiration time.Duration) error
	DeleteCache(ctx context.Context, key string) error
}

// CachedPoolConfigStore fronts a PoolConfigStore with the shared Redis cache
// so repeated dashboard polls skip the Postgres round trip. Writes go through
// to the backing store and invalidate the cached entry.
type CachedPoolConfigStore struct {
	next  PoolConfigStore
	cache ConfigCache
	ttl   time.Duration
}

// NewCachedPoolConfigStore wraps a store with caching. A non-positive ttl
// selects the default.
func NewCachedPoolConfigStore(next PoolConfigStore, cache ConfigCache, ttl time.Duration) *CachedPoolConfigStore {
	if ttl <= 0 {
		ttl = defaultPoolConfigTTL
	}
	return &CachedPoolConfigStore{next: next, cache: cache, ttl: ttl}
}

func poolConfigCacheKey(minerIP string, poolIndex int) string {
	return fmt.Sprintf("pool_config:%s:%d", minerIP, poolIndex)
}

// Get returns the cached configuration when present, falling back to the
// backing store. Cache errors degrade to a miss.
func (s *CachedPoolConfigStore) Get(ctx context.Context, minerIP string, poolIndex int) (*pool.PoolConfig, error) {
	key := poolConfigCacheKey(minerIP, poolIndex)

	var cached pool.PoolConfig
	if hit, err := s.cache.GetCache(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	cfg, err := s.next.Get(ctx, minerIP, poolIndex)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		_ = s.cache.SetCache(ctx, key, cfg, s.ttl)
	}
	return cfg, nil
}

// Upsert writes through and invalidates the cached entry.
func (s *CachedPoolConfigStore) Upsert(ctx context.Context, cfg pool.PoolConfig) error {
	if err := s.next.Upsert(ctx, cfg); err != nil {
		return err
	}
	return s.cache.DeleteCache(ctx, poolConfigCacheKey(cfg.MinerIP, cfg.PoolIndex))
}

// List always reads the backing store; the fleet listing is a single query.
func (s *CachedPoolConfigStore) List(ctx context.Context) ([]pool.PoolConfig, error) {
	return s.next.List(ctx)
}

// Delete removes the stored configuration and its cached entry.
func (s *CachedPoolConfigStore) Delete(ctx context.Context, minerIP string, poolIndex int) error {
	if err := s.next.Delete(ctx, minerIP, poolIndex); err != nil {
		return err
	}
	return s.cache.DeleteCache(ctx, poolConfigCacheKey(minerIP, poolIndex))
}
