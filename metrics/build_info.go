package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterBuildInfo 注册值恒为 1 的 build_info 指标，标签记录版本、默认引擎与 Go 版本。
// 只有第一次调用生效。
func (m *Metrics) RegisterBuildInfo(serviceName, version, defaultEngine string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	labels := []string{serviceName, version, defaultEngine}
	for i, v := range labels {
		if v == "" {
			labels[i] = "unknown"
		}
	}

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information of the range server, always 1",
	}, []string{"service", "version", "default_engine", "go_version"})
	m.BuildInfo.WithLabelValues(append(labels, runtime.Version())...).Set(1)
}
