// Package cache implements the product cache side of the per-event
// pipeline. Operations report boolean outcomes; the processor's
// invalidation policy tolerates failed sets, so nothing retries here.
package cache

import (
	"context"
	"log/slog"

	pkgredis "github.com/atlas-stream/event-pipeline/pkg/redis"
)

// Cache stores serialized product bodies in Redis.
type Cache struct {
	client *pkgredis.Client
	logger *slog.Logger
}

// New creates a Cache on top of the Redis client.
func New(client *pkgredis.Client) *Cache {
	return &Cache{
		client: client,
		logger: slog.Default().With("component", "product-cache"),
	}
}

// Set stores value under key. A false return means the entry may be
// missing or stale and the caller must invalidate.
func (c *Cache) Set(ctx context.Context, key, value string) bool {
	if err := c.client.Set(ctx, key, value, 0); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Del removes key. Deleting a missing key succeeds.
func (c *Cache) Del(ctx context.Context, key string) bool {
	if err := c.client.Del(ctx, key); err != nil {
		c.logger.Warn("cache del failed", "key", key, "error", err)
		return false
	}
	return true
}

// Get returns the cached value, or the empty string when the key is
// absent or the lookup fails.
func (c *Cache) Get(ctx context.Context, key string) string {
	value, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return ""
	}
	return value
}
