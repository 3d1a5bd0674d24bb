package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/limiter"
	"github.com/wyfcoding/segtree/response"
)

// KeyFunc 从请求中提取限流 key。
type KeyFunc func(c *gin.Context) string

// ClientIPKey 以客户端 IP 作为限流 key，优先使用 RequestID 写入 Context 的地址。
func ClientIPKey(c *gin.Context) string {
	if ip := contextx.GetIP(c.Request.Context()); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// RateLimit 构造限流中间件。限流组件出错时放行并记录日志。
func RateLimit(l limiter.Limiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIPKey
	}
	return func(c *gin.Context) {
		k := key(c)

		allowed, err := l.Allow(c.Request.Context(), k)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", k, "error", err)
			c.Next()
			return
		}

		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", k, "path", c.Request.URL.Path)
			response.ErrorWithStatus(c, http.StatusTooManyRequests, "too many requests", "access rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
