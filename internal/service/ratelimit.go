package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireRateLimit takes the per-user window for an action via SetNX: the
// first caller in the window wins, everyone else is rejected until the key
// expires. A nil client disables rate limiting (deployments without redis).
func acquireRateLimit(ctx context.Context, rdb *redis.Client, userID uuid.UUID, action string, window time.Duration) (bool, error) {
	if rdb == nil {
		return true, nil
	}
	won, err := rdb.SetNX(ctx, rateLimitKey(userID, action), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return won, nil
}

// rateLimitRetryAfter reports how long the active window has left, so the
// rejection can tell the caller when to retry. Zero means no active window.
func rateLimitRetryAfter(ctx context.Context, rdb *redis.Client, userID uuid.UUID, action string) time.Duration {
	if rdb == nil {
		return 0
	}
	ttl, err := rdb.TTL(ctx, rateLimitKey(userID, action)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func rateLimitKey(userID uuid.UUID, action string) string {
	return fmt.Sprintf("ratelimit:%s:%s", action, userID)
}
