// Package pagecache keeps rendered public pages in Redis so a visitor's
// request skips the object store.
package pagecache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "page:"

	// DefaultTTL is how long a rendered page stays cached.
	DefaultTTL = 5 * time.Minute
)

// Client is the Redis subset the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache stores page HTML keyed by site slug.
type Cache struct {
	client Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache; ttl <= 0 uses DefaultTTL.
func New(client Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Key returns the Redis key of a slug.
func Key(slug string) string { return keyPrefix + slug }

// Get returns the cached page, or false on a miss or a Redis error.
func (c *Cache) Get(ctx context.Context, slug string) ([]byte, bool) {
	val, err := c.client.Get(ctx, Key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("page cache get failed", slog.String("slug", slug), slog.Any("error", err))
		return nil, false
	}
	return val, true
}

// Set stores html for slug.
func (c *Cache) Set(ctx context.Context, slug string, html []byte) {
	if err := c.client.Set(ctx, Key(slug), html, c.ttl).Err(); err != nil {
		c.logger.Warn("page cache set failed", slog.String("slug", slug), slog.Any("error", err))
	}
}

// Invalidate drops the cached pages of the given slugs. Empty slugs are ignored.
func (c *Cache) Invalidate(ctx context.Context, slugs ...string) {
	keys := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if s != "" {
			keys = append(keys, Key(s))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("page cache invalidate failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}
