package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResolver decorates a ScopeResolver with a short-lived Redis cache
// keyed by caller and verb. Resolution probes the permission collaborator up
// to four times per query; the cache keeps that off the hot read path.
// Every cache failure falls through to the inner resolver.
type CachedResolver struct {
	inner  ScopeResolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps inner with a Redis cache.
func NewCachedResolver(inner ScopeResolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve returns the cached mode when present, otherwise resolves and caches.
func (c *CachedResolver) Resolve(ctx context.Context, callerID, verb string) Mode {
	key := "audit:scope:" + callerID + ":" + verb

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return ParseMode(cached)
	}
	if err != redis.Nil {
		c.logger.WarnContext(ctx, "scope cache read failed",
			"error", err,
			"caller_id", callerID,
		)
	}

	mode := c.inner.Resolve(ctx, callerID, verb)

	if err := c.client.Set(ctx, key, mode.String(), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "scope cache write failed",
			"error", err,
			"caller_id", callerID,
		)
	}
	return mode
}
