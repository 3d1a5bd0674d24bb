package app

import (
	"time"

	"github.com/wyfcoding/segtree/server"
)

// Option 配置 App。
type Option func(*options)

type options struct {
	servers         []server.Server
	hooks           []Hook
	cleanups        []func()
	shutdownTimeout time.Duration
}

// WithServer 注册随应用并发运行的服务，Start 应在 ctx 取消后返回。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithHook 注册生命周期钩子。
func WithHook(hooks ...Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// WithCleanup 注册关闭时执行的清理函数，在所有钩子停止之后按注册顺序调用。
func WithCleanup(cleanup func()) Option {
	return func(o *options) {
		o.cleanups = append(o.cleanups, cleanup)
	}
}

// WithShutdownTimeout 设置停止钩子的总超时。
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}
