package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/contextx"
)

// Logger 访问日志中间件。5xx 记为 Error，4xx 记为 Warn，超过 slow 阈值的请求记为 Warn。
func Logger(logger *slog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		cost := time.Since(start)
		ctx := c.Request.Context()
		status := c.Writer.Status()

		args := append(contextx.LogAttrs(ctx),
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"cost", cost,
			"user_agent", c.Request.UserAgent(),
		)
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "HTTP Request", args...)
		case status >= 400:
			logger.WarnContext(ctx, "HTTP Request", args...)
		case slow > 0 && cost > slow:
			logger.WarnContext(ctx, "HTTP Request slow", args...)
		default:
			logger.InfoContext(ctx, "HTTP Request", args...)
		}
	}
}
