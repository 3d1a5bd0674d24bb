// Package logging 提供了统一的结构化日志（slog）封装，支持OpenTelemetry追踪上下文注入、文件切割和运行时调整级别。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// defaultLogger 是全局默认的Logger实例。
	defaultLogger *Logger
	mu            sync.RWMutex

	// level 由所有 Logger 共享，配置热更新时调用 SetLevel 即可生效。
	level = new(slog.LevelVar)
)

// Config 定义日志配置
type Config struct {
	Service    string
	Module     string
	Level      string
	File       string // 日志文件路径，为空则只输出到 stdout
	Console    bool   // 配置了 File 时是否同时输出到 stdout
	MaxSize    int    // 每个日志文件最大尺寸 (MB)
	MaxBackups int    // 保留旧日志文件的最大个数
	MaxAge     int    // 保留旧日志文件的最大天数
	Compress   bool   // 是否压缩旧日志

	// Output 覆盖默认输出目标，主要用于测试。
	Output io.Writer
}

// Logger 封装 `*slog.Logger`，并带上服务名和模块名。
type Logger struct {
	*slog.Logger
	Service string
	Module  string
}

// TraceHandler 从 `context.Context` 中提取 `trace_id` 和 `span_id` 注入日志记录。
type TraceHandler struct {
	slog.Handler
}

// Handle 如果上下文中存在有效的 SpanContext，追加追踪字段后交给下游。
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs 保持装饰器不丢失。
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel 解析日志级别字符串，未知值按 info 处理。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel 运行时调整全局日志级别。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// Level 返回当前全局日志级别。
func Level() slog.Level {
	return level.Level()
}

// NewFromConfig 创建一个新的Logger实例。
// 配置了 File 时使用 lumberjack 切割日志。
func NewFromConfig(cfg Config) *Logger {
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var sinks []slog.Handler
	switch {
	case cfg.Output != nil:
		sinks = append(sinks, slog.NewJSONHandler(cfg.Output, opts))
	case cfg.File != "":
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		sinks = append(sinks, slog.NewJSONHandler(fileWriter, opts))
		if cfg.Console {
			sinks = append(sinks, slog.NewJSONHandler(os.Stdout, opts))
		}
	default:
		sinks = append(sinks, slog.NewJSONHandler(os.Stdout, opts))
	}

	handler := &TraceHandler{Handler: newTeeHandler(sinks...)}
	logger := slog.New(handler).With(
		slog.String("service", cfg.Service),
		slog.String("module", cfg.Module),
	)

	return &Logger{
		Logger:  logger,
		Service: cfg.Service,
		Module:  cfg.Module,
	}
}

// SetDefault 替换全局默认日志记录器，同时设置 slog 的默认实例。
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
	slog.SetDefault(l.Logger)
}

// Default 返回默认日志记录器实例，未初始化时创建一个输出到 stdout 的实例。
func Default() *Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewFromConfig(Config{Service: "rangeserver", Module: "default", Level: level.Level().String()})
	}
	return defaultLogger
}

// WithModule 派生一个属于指定模块的 Logger。
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", module)),
		Service: l.Service,
		Module:  module,
	}
}

// LogDuration 返回一个在操作结束时调用的函数，按 Info 级别记录耗时。
//
//	done := logger.LogDuration(ctx, "preload", "trees", n)
//	defer done()
func (l *Logger) LogDuration(ctx context.Context, operation string, args ...any) func() {
	start := time.Now()
	return func() {
		logArgs := append(args, "duration", time.Since(start))
		l.InfoContext(ctx, operation+" finished", logArgs...)
	}
}
