package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a shared keyed-store rate limiter for multi-instance
// deployments. The counter key carries the window TTL, so the window slides
// the same way as the in-memory limiter: first hit starts the window, the
// key expiry resets it.
type RedisLimiter struct {
	client *redis.Client

	maxRequests int
	windowSize  time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter. Non-positive arguments
// fall back to the defaults.
func NewRedisLimiter(client *redis.Client, maxRequests int, windowSize time.Duration) *RedisLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		windowSize:  windowSize,
	}
}

// Allow records an attempt for the user.
func (l *RedisLimiter) Allow(ctx context.Context, userID string) error {
	key := fmt.Sprintf("agent:ratelimit:%s", userID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment rate limit counter: %w", err)
	}

	if count == 1 {
		// First hit in a fresh window - start the clock
		if err := l.client.Expire(ctx, key, l.windowSize).Err(); err != nil {
			return fmt.Errorf("set rate limit window: %w", err)
		}
	}

	if count > int64(l.maxRequests) {
		return ErrLimited
	}

	return nil
}

var _ RateLimiter = (*RedisLimiter)(nil)
