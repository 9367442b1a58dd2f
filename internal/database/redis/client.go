// Package redis provides the shared Redis cache for fleetd services. It
// holds the chain-data cache (BTC price, difficulty, block height) and the
// per-miner solo block-found markers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the fleet services
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client
func NewClient(cfg *Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromURL creates a Redis client from a redis:// URL.
func NewClientFromURL(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return NewClient(&Config{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Chain-data cache. Implements the cache interface the chain data service
// consumes: GetValue returns "" on a miss.

// GetValue retrieves a cached string value.
func (c *Client) GetValue(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// SetValue stores a string value with a TTL.
func (c *Client) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Solo block markers

// soloBlockMarker records a block attributed to a solo miner.
type soloBlockMarker struct {
	BlockHash   string    `json:"block_hash"`
	BlockHeight int64     `json:"block_height"`
	SeenAt      time.Time `json:"seen_at"`
}

// MarkSoloBlock records that a block was found by the given solo miner. The
// marker expires after retention so an old block never inflates a later
// earnings window.
func (c *Client) MarkSoloBlock(ctx context.Context, minerIP, blockHash string, blockHeight int64, seenAt time.Time, retention time.Duration) error {
	marker := soloBlockMarker{
		BlockHash:   blockHash,
		BlockHeight: blockHeight,
		SeenAt:      seenAt,
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal solo block marker: %w", err)
	}

	key := fmt.Sprintf("solo_block:%s", minerIP)
	if err := c.rdb.Set(ctx, key, data, retention).Err(); err != nil {
		return fmt.Errorf("failed to set solo block marker: %w", err)
	}
	return nil
}

// SoloBlockSince reports whether the miner has a recorded block at or after
// the given time, and the block hash if so.
func (c *Client) SoloBlockSince(ctx context.Context, minerIP string, since time.Time) (bool, string, error) {
	key := fmt.Sprintf("solo_block:%s", minerIP)
	data, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to get solo block marker: %w", err)
	}

	var marker soloBlockMarker
	if err := json.Unmarshal([]byte(data), &marker); err != nil {
		return false, "", fmt.Errorf("failed to unmarshal solo block marker: %w", err)
	}

	if marker.SeenAt.Before(since) {
		return false, "", nil
	}
	return true, marker.BlockHash, nil
}

// Last-seen block, shared across services.

// SetLastBlock stores the most recently seen block.
func (c *Client) SetLastBlock(ctx context.Context, blockHash string, blockHeight int64, seenAt time.Time) error {
	marker := soloBlockMarker{BlockHash: blockHash, BlockHeight: blockHeight, SeenAt: seenAt}
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal block marker: %w", err)
	}
	if err := c.rdb.Set(ctx, "last_block", data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last block: %w", err)
	}
	return nil
}

// GetLastBlock returns the most recently seen block hash and height, or
// ("", 0) when none has been recorded yet.
func (c *Client) GetLastBlock(ctx context.Context) (string, int64, error) {
	data, err := c.rdb.Get(ctx, "last_block").Result()
	if err == redis.Nil {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to get last block: %w", err)
	}

	var marker soloBlockMarker
	if err := json.Unmarshal([]byte(data), &marker); err != nil {
		return "", 0, fmt.Errorf("failed to unmarshal block marker: %w", err)
	}
	return marker.BlockHash, marker.BlockHeight, nil
}

// Generic JSON cache, used for resolved pool configs so repeated dashboard
// polls avoid Postgres round trips.

// SetCache stores data in cache with expiration
func (c *Client) SetCache(ctx context.Context, key string, data any, expiration time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	cacheKey := fmt.Sprintf("cache:%s", key)
	if err := c.rdb.Set(ctx, cacheKey, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// GetCache retrieves data from cache. Returns false when the key is absent.
func (c *Client) GetCache(ctx context.Context, key string, dest any) (bool, error) {
	cacheKey := fmt.Sprintf("cache:%s", key)
	jsonData, err := c.rdb.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal([]byte(jsonData), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return true, nil
}

// DeleteCache removes data from cache
func (c *Client) DeleteCache(ctx context.Context, key string) error {
	cacheKey := fmt.Sprintf("cache:%s", key)
	if err := c.rdb.Del(ctx, cacheKey).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}
