package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPOptions http.Server 的超时与限制参数，零值使用 net/http 默认行为。
type HTTPOptions struct {
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// GinServer 封装 `http.Server`，负责监听、优雅关闭和地址回报。
type GinServer struct {
	server          *http.Server
	addr            string
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewGinServer 创建一个新的服务器实例。handler 通常是 *gin.Engine。
func NewGinServer(handler http.Handler, addr string, opts HTTPOptions, logger *slog.Logger) *GinServer {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	return &GinServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
			MaxHeaderBytes:    opts.MaxHeaderBytes,
		},
		addr:            addr,
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          logger,
		ready:           make(chan struct{}),
	}
}

// Start 监听并阻塞服务，ctx 取消时优雅关闭。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Starting Gin server", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gin server stopping due to context cancellation")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止服务器。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Ready 在开始监听后关闭。
func (s *GinServer) Ready() <-chan struct{} { return s.ready }

// Addr 返回实际监听地址，未启动时返回配置地址。
func (s *GinServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
