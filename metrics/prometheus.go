// Package metrics 封装独立的 Prometheus 注册表，以及 HTTP 层和区间树引擎的标准指标。
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的标准监控指标。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration   *prometheus.HistogramVec // HTTP 请求耗时分布
	HTTPInFlight          *prometheus.GaugeVec     // 正在处理的 HTTP 请求数
	HTTPSlowRequestsTotal *prometheus.CounterVec   // 超过慢请求阈值的请求数
	BuildInfo             *prometheus.GaugeVec

	Range  *RangeMetrics
	Ingest *IngestMetrics
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_server_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	}, []string{"method", "path"})

	m.HTTPSlowRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_slow_requests_total",
		Help: "Total number of HTTP requests slower than the configured threshold",
	}, []string{"method", "path"})

	m.Range = newRangeMetrics(m)
	m.Ingest = newIngestMetrics(m)

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// Registry 返回底层注册表，测试中配合 testutil 使用。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHTTP 在指定地址启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHTTP(addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
