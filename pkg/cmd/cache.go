package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/salesflow/pkg/cache"
)

// NewCache connects the analytics cache. An empty URL disables caching and
// returns nil.
func NewCache(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (*cache.RedisCache, error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "Analytics cache disabled")

		return nil, nil
	}

	return cache.Connect(ctx, logger, redisURL, ttl)
}
