// Package health 汇总依赖探测结果，供就绪检查接口使用。
package health

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

// Checker 定义健康检查函数原型，返回 nil 表示健康。
type Checker func(ctx context.Context) error

// Result 单项检查结果。
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report 一次就绪检查的汇总。
type Report struct {
	Healthy bool     `json:"healthy"`
	Checks  []Result `json:"checks"`
}

// Registry 按名称登记的检查项集合。
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry timeout 为单项检查的超时，<= 0 时取 2 秒。
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{checkers: make(map[string]Checker), timeout: timeout}
}

// Register 登记检查项，同名覆盖。
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Check 并发执行所有检查项，结果按名称排序。
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := maps.Clone(r.checkers)
	r.mu.RUnlock()

	names := slices.Sorted(maps.Keys(checkers))
	results := make([]Result, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			res := Result{Name: name, Healthy: true}
			if err := checkers[name](cctx); err != nil {
				res.Healthy = false
				res.Error = err.Error()
			}
			results[i] = res
		}()
	}
	wg.Wait()

	report := Report{Healthy: true, Checks: results}
	for _, res := range results {
		if !res.Healthy {
			report.Healthy = false
		}
	}
	return report
}

// Counter 是 catalog.Catalog 中就绪检查用到的部分。
type Counter interface {
	Len() int
}

// MinTreesChecker 要求目录中至少有 n 棵树，用于等待预建完成。
func MinTreesChecker(c Counter, n int) Checker {
	return func(context.Context) error {
		if c.Len() < n {
			return errors.New("catalog not ready")
		}
		return nil
	}
}
