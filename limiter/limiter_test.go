package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(rate.Limit(1), 2)
	ctx := context.Background()
	ok, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "c")
	assert.False(t, ok)
}

func TestKeyedLimiter_IsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(rate.Limit(1), 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok)
	assert.Equal(t, 2, l.Len())

	// 令牌按时间补充。
	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}

func TestKeyedLimiter_EvictsIdle(t *testing.T) {
	l := NewKeyedLimiter(rate.Limit(10), 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len())
}
