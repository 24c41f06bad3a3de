// Package cache wraps Redis as a best-effort read cache. Every error from the
// backing store is absorbed and logged: a failing cache degrades to a miss or
// a skipped write, never to a request failure.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds stale-read exposure when invalidation itself fails.
const DefaultTTL = 60 * time.Second

// Client is the key/value cache with TTL and wildcard-pattern deletion.
type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps the given Redis client. ttl is the default entry lifetime; zero
// or negative falls back to DefaultTTL. A nil rdb yields a disabled cache
// where every read is a miss and writes are no-ops.
func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Get unmarshals the cached value for key into dest and reports whether the
// key was present. Backing-store errors are logged and reported as a miss.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("cache get failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.Warn("cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// Set stores value under key with the default TTL. Errors are absorbed.
func (c *Client) Set(ctx context.Context, key string, value interface{}) {
	c.SetTTL(ctx, key, value, c.ttl)
}

// SetTTL stores value under key with an explicit TTL. Errors are absorbed.
func (c *Client) SetTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache set marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Del removes a literal key, or every key matching the pattern when
// keyOrPattern contains a "*" wildcard. Errors are absorbed.
func (c *Client) Del(ctx context.Context, keyOrPattern string) {
	if c.rdb == nil {
		return
	}
	if !strings.Contains(keyOrPattern, "*") {
		if err := c.rdb.Del(ctx, keyOrPattern).Err(); err != nil {
			c.logger.Warn("cache del failed", slog.String("key", keyOrPattern), slog.Any("error", err))
		}
		return
	}

	var keys []string
	iter := c.rdb.Scan(ctx, 0, keyOrPattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", slog.String("pattern", keyOrPattern), slog.Any("error", err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache bulk del failed", slog.String("pattern", keyOrPattern), slog.Any("error", err))
	}
}
