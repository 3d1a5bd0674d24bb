package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Tracing 为每个请求创建服务端 span，并从请求头中还原上游的追踪上下文。
func Tracing(serviceName string, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(serviceName, otelgin.WithGinFilter(func(c *gin.Context) bool {
		_, ok := skip[c.FullPath()]
		return !ok
	}))
}
