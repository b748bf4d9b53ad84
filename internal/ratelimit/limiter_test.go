package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailThreshold = 3
	cfg.OpenDuration = time.Hour
	l := New(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Acquire(ctx, "array-1")
		require.NoError(t, err)
		l.Feedback("array-1", Feedback{StatusCode: 500})
	}

	_, err := l.Acquire(ctx, "array-1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailThreshold = 2
	cfg.OpenDuration = time.Hour
	l := New(cfg)
	ctx := context.Background()

	_, _ = l.Acquire(ctx, "array-1")
	l.Feedback("array-1", Feedback{StatusCode: 500})
	_, _ = l.Acquire(ctx, "array-1")
	l.Feedback("array-1", Feedback{StatusCode: 200})
	_, _ = l.Acquire(ctx, "array-1")
	l.Feedback("array-1", Feedback{StatusCode: 500})

	_, err := l.Acquire(ctx, "array-1")
	assert.NoError(t, err, "circuit must not open when failures are not consecutive")
}

func TestIndependentHosts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveFailThreshold = 1
	cfg.OpenDuration = time.Hour
	l := New(cfg)
	ctx := context.Background()

	_, _ = l.Acquire(ctx, "array-1")
	l.Feedback("array-1", Feedback{StatusCode: 500})

	_, err := l.Acquire(ctx, "array-2")
	assert.NoError(t, err)
}
