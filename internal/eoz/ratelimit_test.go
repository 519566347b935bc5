package eoz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAcquire(t *testing.T) {
	rl := newRateLimiter(5)
	defer rl.Close()

	// The bucket starts full, so the first 5 acquisitions succeed immediately.
	for i := 0; i < 5; i++ {
		assert.True(t, rl.tryAcquire(), "acquisition %d should succeed", i)
	}
	assert.False(t, rl.tryAcquire())
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(100)
	defer rl.Close()

	for rl.tryAcquire() {
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// With 100 tokens/sec a refill arrives within the deadline.
	require.NoError(t, rl.wait(ctx))
}

func TestRateLimiterWaitCanceled(t *testing.T) {
	rl := newRateLimiter(1)
	defer rl.Close()

	for rl.tryAcquire() {
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterDefaultsOnInvalidRate(t *testing.T) {
	rl := newRateLimiter(0)
	defer rl.Close()

	assert.Equal(t, 10, rl.capacity)
}
