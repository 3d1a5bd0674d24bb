// Package middleware 提供 rangeserver HTTP 层使用的 Gin 中间件。
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/idgen"
)

const (
	HeaderXRequestID = "X-Request-ID"
)

// RequestID 透传或生成请求 ID，并写入 Context 与响应头。
// g 为 nil 时使用 idgen 的全局默认生成器。
func RequestID(g idgen.Generator) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			if g != nil {
				requestID = formatID(g.Generate())
			} else {
				requestID = idgen.GenIDString()
			}
		}

		ctx := contextx.WithRequestID(c.Request.Context(), requestID)
		ctx = contextx.WithIP(ctx, c.ClientIP())
		ctx = contextx.WithSource(ctx, "http")
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderXRequestID, requestID)

		c.Next()
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
