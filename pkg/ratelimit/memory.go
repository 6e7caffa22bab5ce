package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is one user's sliding-window state.
type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a lock-guarded in-memory rate limiter. It is the
// single-process default; multi-instance deployments should use the
// Redis-backed limiter so all instances share one counter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	maxRequests int
	windowSize  time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter. Non-positive arguments
// fall back to the defaults.
func NewMemoryLimiter(maxRequests int, windowSize time.Duration) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &MemoryLimiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		windowSize:  windowSize,
		now:         time.Now,
	}
}

// Allow records an attempt for the user.
func (l *MemoryLimiter) Allow(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[userID]
	if !ok || now.After(w.resetAt) {
		l.windows[userID] = &window{count: 1, resetAt: now.Add(l.windowSize)}
		return nil
	}

	if w.count >= l.maxRequests {
		return ErrLimited
	}

	w.count++
	return nil
}

var _ RateLimiter = (*MemoryLimiter)(nil)
