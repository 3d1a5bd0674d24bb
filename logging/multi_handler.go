package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler 把同一条记录分发给多个下游，用于文件与控制台同时输出。
type teeHandler struct {
	sinks []slog.Handler
}

func newTeeHandler(sinks ...slog.Handler) slog.Handler {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &teeHandler{sinks: sinks}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle 任一下游失败不影响其他下游，错误合并返回。
func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, s := range h.sinks {
		if !s.Enabled(ctx, record.Level) {
			continue
		}
		if err := s.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		next[i] = s.WithAttrs(attrs)
	}
	return &teeHandler{sinks: next}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		next[i] = s.WithGroup(name)
	}
	return &teeHandler{sinks: next}
}
