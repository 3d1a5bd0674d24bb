package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/response"
	"github.com/wyfcoding/segtree/tracing"
)

// Recovery 捕获 handler 中的 panic，返回 500 并记录请求上下文、所操作的树和堆栈。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			tracing.SetError(ctx, fmt.Errorf("panic: %v", rec))

			args := append(contextx.LogAttrs(ctx),
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			if tree := c.Param("name"); tree != "" {
				args = append(args, "tree", tree)
			}
			logger.ErrorContext(ctx, "Panic recovered", args...)

			response.ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
			c.Abort()
		}()
		c.Next()
	}
}
