package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// NewGinEngine 创建不带默认中间件的 Gin 引擎，中间件顺序完全由调用方决定。
// trustedProxies 为空时不信任任何代理头。
func NewGinEngine(mode string, trustedProxies []string, middlewares ...gin.HandlerFunc) (*gin.Engine, error) {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	engine.Use(middlewares...)
	return engine, nil
}

// GinMode 把部署环境映射为 Gin 运行模式。
func GinMode(environment string) string {
	switch environment {
	case "prod":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
