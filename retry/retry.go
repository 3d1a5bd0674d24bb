// Package retry 提供带抖动的指数退避重试.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy 重试策略。零值表示只执行一次。
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64 // 0~1，按比例随机上下浮动

	// Retryable 为空时所有错误都重试。
	Retryable func(error) bool
}

// Default 返回提交位点等短操作使用的默认策略.
func Default() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Backoff 返回第 attempt 次重试前的等待时间 (attempt 从 0 开始)，不含抖动。
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for range attempt {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

func (p Policy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * p.Jitter * float64(d)
	return max(time.Duration(float64(d)+delta), 0)
}

// Do 执行 fn，失败且可重试时按退避等待后重试。ctx 取消时立即返回。
// 只执行了一次就放弃时返回 fn 的原始错误。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	attempt := 0
	for ; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || (p.Retryable != nil && !p.Retryable(err)) {
			break
		}

		timer := time.NewTimer(p.jittered(p.Backoff(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if attempt == 0 {
		return err
	}
	return fmt.Errorf("retry failed after %d attempts: %w", attempt+1, err)
}
