package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/catalog"
	"github.com/wyfcoding/segtree/health"
	"github.com/wyfcoding/segtree/idgen"
	"github.com/wyfcoding/segtree/limiter"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/metrics"
	"github.com/wyfcoding/segtree/middleware"
	"github.com/wyfcoding/segtree/response"
	"github.com/wyfcoding/segtree/server"
	"golang.org/x/time/rate"
)

const (
	healthPath = "/healthz"
	readyPath  = "/readyz"

	// RateScopeGlobal 所有客户端共享一个令牌桶，其余取值按客户端 IP 分桶。
	RateScopeGlobal = "global"
)

// RouterOptions 路由与中间件参数。
type RouterOptions struct {
	ServiceName    string
	Mode           string // gin 运行模式
	TrustedProxies []string
	MaxBodyBytes   int64
	SlowThreshold  time.Duration
	MetricsPath    string // 为空时不暴露指标
	RateLimit      float64
	RateBurst      int              // RateLimit <= 0 时不限流
	RateScope      string           // client | global
	Readiness      *health.Registry // 为空时 /readyz 恒为就绪
}

// NewRouter 组装完整的 Gin 引擎：治理中间件、健康检查、指标和 /v1 业务路由。
func NewRouter(opts RouterOptions, cat *catalog.Catalog, m *metrics.Metrics, logger *logging.Logger, ids idgen.Generator) (*gin.Engine, error) {
	skip := []string{healthPath, readyPath}
	if opts.MetricsPath != "" {
		skip = append(skip, opts.MetricsPath)
	}

	mws := []gin.HandlerFunc{
		middleware.Tracing(opts.ServiceName, skip...),
		middleware.RequestID(ids),
		middleware.TraceIDHeader(),
		middleware.Logger(logger.Logger, opts.SlowThreshold),
		middleware.Recovery(logger.Logger),
		middleware.HTTPMetrics(m, middleware.MetricsOptions{SlowThreshold: opts.SlowThreshold, SkipPaths: skip}),
		middleware.MaxBodyBytes(opts.MaxBodyBytes),
	}
	if opts.RateLimit > 0 {
		var l limiter.Limiter
		if opts.RateScope == RateScopeGlobal {
			l = limiter.NewLocalLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
		} else {
			l = limiter.NewKeyedLimiter(rate.Limit(opts.RateLimit), opts.RateBurst, 0)
		}
		mws = append(mws, middleware.RateLimit(l, middleware.ClientIPKey))
	}

	engine, err := server.NewGinEngine(opts.Mode, opts.TrustedProxies, mws...)
	if err != nil {
		return nil, err
	}

	engine.GET(healthPath, func(c *gin.Context) {
		response.SuccessWithRawData(c, gin.H{"status": "ok", "trees": cat.Len()})
	})
	engine.GET(readyPath, func(c *gin.Context) {
		if opts.Readiness == nil {
			response.SuccessWithRawData(c, health.Report{Healthy: true})
			return
		}
		report := opts.Readiness.Check(c.Request.Context())
		if !report.Healthy {
			c.JSON(http.StatusServiceUnavailable, report)
			return
		}
		response.SuccessWithRawData(c, report)
	})
	if opts.MetricsPath != "" && m != nil {
		engine.GET(opts.MetricsPath, gin.WrapH(m.Handler()))
	}
	engine.NoRoute(func(c *gin.Context) {
		response.ErrorWithStatus(c, http.StatusNotFound, "route not found", c.Request.URL.Path)
	})

	NewHandler(cat).Register(engine.Group("/v1"))
	return engine, nil
}
