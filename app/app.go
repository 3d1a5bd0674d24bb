// Package app 负责 rangeserver 的进程级生命周期：启动组件、并发运行服务、响应信号并有序关闭。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/segtree/server"
	"golang.org/x/sync/errgroup"
)

// App 是应用程序的核心容器。
type App struct {
	name      string
	logger    *slog.Logger
	opts      options
	lifecycle *Lifecycle
}

// New 创建应用实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	lc := NewLifecycle(logger)
	for _, h := range o.hooks {
		lc.Append(h)
	}
	return &App{name: name, logger: logger, opts: o, lifecycle: lc}
}

// Run 阻塞运行直到 ctx 取消、收到 SIGINT/SIGTERM 或任一服务出错。
// 钩子按注册顺序启动、逆序停止，随后执行清理函数。
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid(), "servers", len(a.opts.servers))

	if err := a.lifecycle.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.opts.servers {
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				a.logger.Error("server exited with error", "error", err)
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("shutting down application", "name", a.name)
	if stopErr := a.shutdown(); err == nil {
		err = stopErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		a.logger.Info("application shut down gracefully")
	}
	return err
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer cancel()

	err := a.lifecycle.Stop(ctx)
	for _, cleanup := range a.opts.cleanups {
		cleanup()
	}
	return err
}

var _ server.Server = (*funcServer)(nil)

// funcServer 把一对函数适配为 server.Server。
type funcServer struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (f funcServer) Start(ctx context.Context) error { return f.start(ctx) }

func (f funcServer) Stop(ctx context.Context) error {
	if f.stop == nil {
		return nil
	}
	return f.stop(ctx)
}

// ServerFunc 将阻塞函数包装为 server.Server，例如后台消费循环。
func ServerFunc(start, stop func(ctx context.Context) error) server.Server {
	return funcServer{start: start, stop: stop}
}
