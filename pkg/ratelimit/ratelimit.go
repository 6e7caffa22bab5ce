// Package ratelimit enforces the per-user request budget for agent turns.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimited is returned when a user has exhausted the current window.
var ErrLimited = errors.New("rate limit exceeded")

// Defaults for the agent turn endpoint: 20 requests per 60 seconds.
const (
	DefaultMaxRequests = 20
	DefaultWindow      = 60 * time.Second
)

// RateLimiter decides whether a user may start another agent turn.
// Implementations are keyed by user ID and use a sliding window
// {count, resetAt}: the window resets once now passes resetAt, otherwise
// the counter increments until the maximum is reached.
type RateLimiter interface {
	// Allow records an attempt for the user. It returns ErrLimited when the
	// user is over budget for the current window, nil otherwise.
	Allow(ctx context.Context, userID string) error
}
