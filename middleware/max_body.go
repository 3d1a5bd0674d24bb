package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/response"
)

// MaxBodyBytes 限制建树与更新请求的请求体大小，limit <= 0 时不生效。
// 声明了超限 Content-Length 的请求直接返回 413；未声明长度的请求在读取超限时
// 由 handler 的绑定步骤返回 413。
func MaxBodyBytes(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	detail := fmt.Sprintf("request body must not exceed %d bytes", limit)
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			response.ErrorWithStatus(c, http.StatusRequestEntityTooLarge, "request body too large", detail)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
