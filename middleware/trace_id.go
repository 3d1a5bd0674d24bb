package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/tracing"
)

// HeaderXTraceID 响应头中的 Trace ID。
const HeaderXTraceID = "X-Trace-ID"

// TraceIDHeader 把 Trace ID 回写到响应头，并把请求 ID 记到 span 上，
// 这样从访问日志或客户端拿到任意一个 ID 都能找到对应链路。
// 挂在 Tracing 与 RequestID 之后。
func TraceIDHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if traceID := tracing.GetTraceID(ctx); traceID != "" {
			c.Header(HeaderXTraceID, traceID)
		}
		if requestID := contextx.GetRequestID(ctx); requestID != "" {
			tracing.AddTag(ctx, "request_id", requestID)
		}
		c.Next()
	}
}
