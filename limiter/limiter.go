// Package limiter 提供基于令牌桶的本地限流器。
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 接口定义了限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 全局令牌桶，忽略 key。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter r 为每秒令牌数，b 为桶容量。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	return &LocalLimiter{limiter: rate.NewLimiter(r, b)}
}

// Allow 尝试取一个令牌。
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}

// KeyedLimiter 为每个 key（客户端 IP、树名）维护独立的令牌桶。
// 超过 idleTTL 未访问的桶在下一次 Allow 时被清理。
type KeyedLimiter struct {
	mu      sync.Mutex
	r       rate.Limit
	b       int
	idleTTL time.Duration
	buckets map[string]*bucket
	lastGC  time.Time
	now     func() time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewKeyedLimiter 创建按 key 隔离的限流器。
func NewKeyedLimiter(r rate.Limit, b int, idleTTL time.Duration) *KeyedLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		r:       r,
		b:       b,
		idleTTL: idleTTL,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 尝试从 key 对应的桶取一个令牌。
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.idleTTL {
		for k, bk := range l.buckets {
			if now.Sub(bk.seen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	bk, ok := l.buckets[key]
	if !ok {
		bk = &bucket{limiter: rate.NewLimiter(l.r, l.b)}
		l.buckets[key] = bk
	}
	bk.seen = now
	return bk.limiter.AllowN(now, 1), nil
}

// Len 返回当前持有的桶数量。
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
