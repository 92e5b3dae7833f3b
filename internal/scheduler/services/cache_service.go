package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"go-batchd/internal/scheduler/dto"
	"go-batchd/pkg/database"
)

const statsCacheKey = "scheduler:stats"

// SchedulerCache provides Redis caching for the stats endpoint. All methods
// tolerate a nil Redis client so the module runs unchanged without one.
type SchedulerCache struct {
	redis *database.Redis
}

// NewSchedulerCache creates a new scheduler cache
func NewSchedulerCache(redis *database.Redis) *SchedulerCache {
	return &SchedulerCache{redis: redis}
}

// CachedStats wraps cached statistics with their validity window.
type CachedStats struct {
	Stats     *dto.StatsResponse `json:"stats"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// GetStats retrieves cached statistics. Misses and expired entries return
// redis.Nil.
func (c *SchedulerCache) GetStats(ctx context.Context) (*dto.StatsResponse, error) {
	if c.redis == nil {
		return nil, redis.Nil
	}

	var cached CachedStats
	if err := c.redis.GetJSON(ctx, statsCacheKey, &cached); err != nil {
		return nil, err
	}
	if time.Now().After(cached.ExpiresAt) {
		if err := c.redis.Delete(ctx, statsCacheKey); err != nil && !errors.Is(err, redis.Nil) {
			slog.Debug("Failed to drop expired stats cache", slog.String("error", err.Error()))
		}
		return nil, redis.Nil
	}
	return cached.Stats, nil
}

// SetStats caches statistics with a TTL. A nil Redis client is a no-op.
func (c *SchedulerCache) SetStats(ctx context.Context, stats *dto.StatsResponse, ttl time.Duration) error {
	if c.redis == nil {
		return nil
	}
	cached := CachedStats{
		Stats:     stats,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	return c.redis.SetJSON(ctx, statsCacheKey, cached, ttl)
}

// InvalidateStats drops the cached statistics so task mutations show up on
// the next read.
func (c *SchedulerCache) InvalidateStats(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, statsCacheKey)
}
