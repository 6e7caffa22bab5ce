package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_AllowsUpToMax(t *testing.T) {
	l := NewMemoryLimiter(20, time.Minute)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Allow(ctx, "user-1"), "request %d", i+1)
	}

	assert.ErrorIs(t, l.Allow(ctx, "user-1"), ErrLimited)
}

func TestMemoryLimiter_UsersAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "user-1"))
	assert.ErrorIs(t, l.Allow(ctx, "user-1"), ErrLimited)
	assert.NoError(t, l.Allow(ctx, "user-2"))
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()

	current := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	require.NoError(t, l.Allow(ctx, "user-1"))
	require.NoError(t, l.Allow(ctx, "user-1"))
	require.ErrorIs(t, l.Allow(ctx, "user-1"), ErrLimited)

	// Still inside the window.
	current = current.Add(30 * time.Second)
	assert.ErrorIs(t, l.Allow(ctx, "user-1"), ErrLimited)

	// Past the window boundary the counter starts over.
	current = current.Add(31 * time.Second)
	assert.NoError(t, l.Allow(ctx, "user-1"))
	assert.NoError(t, l.Allow(ctx, "user-1"))
	assert.ErrorIs(t, l.Allow(ctx, "user-1"), ErrLimited)
}

func TestNewMemoryLimiter_Defaults(t *testing.T) {
	l := NewMemoryLimiter(0, 0)
	assert.Equal(t, DefaultMaxRequests, l.maxRequests)
	assert.Equal(t, DefaultWindow, l.windowSize)
}
