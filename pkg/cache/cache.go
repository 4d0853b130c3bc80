// Package cache provides an optional Redis-backed cache for search
// results, keyed by the rendered statement and its bound arguments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds staleness between materialized view refreshes.
const DefaultTTL = 5 * time.Minute

// QueryCache caches serialized search results in Redis.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at url and verifies the connection.
func New(url string, ttl time.Duration) (*QueryCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{client: client, ttl: ttl}
}

// Key derives a cache key from a rendered statement and its arguments.
func Key(sql string, args []interface{}) string {
	h := sha256.New()
	h.Write([]byte(sql))
	for _, a := range args {
		fmt.Fprintf(h, "|%v", a)
	}
	return "pgsearch:query:" + hex.EncodeToString(h.Sum(nil))
}

// Get unmarshals the cached value for key into dest. Returns false on
// a cache miss.
func (c *QueryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.client.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return true, nil
}

// Set stores value under key for the configured TTL.
func (c *QueryCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate removes every cached query result. Called after a view
// refresh so stale rankings are not served.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "pgsearch:query:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *QueryCache) Close() error {
	return c.client.Close()
}
