package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 操作结果标签。
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusRejected = "rejected" // 输入非法，已丢弃
)

// RangeMetrics 区间树操作相关指标。
type RangeMetrics struct {
	OperationsTotal   *prometheus.CounterVec   // 维度: engine, aggregation, op, status
	OperationDuration *prometheus.HistogramVec // 维度: engine, op
	TreesActive       prometheus.Gauge
	Leaves            *prometheus.GaugeVec // 维度: tree
}

func newRangeMetrics(m *Metrics) *RangeMetrics {
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "range_trees_active",
		Help: "Number of trees currently held in the catalog",
	})
	m.registry.MustRegister(active)

	return &RangeMetrics{
		OperationsTotal: m.NewCounterVec(prometheus.CounterOpts{
			Name: "range_tree_operations_total",
			Help: "Total number of range tree operations",
		}, []string{"engine", "aggregation", "op", "status"}),
		OperationDuration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "range_tree_operation_duration_seconds",
			Help:    "Range tree operation latency in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"engine", "op"}),
		TreesActive: active,
		Leaves: m.NewGaugeVec(prometheus.GaugeOpts{
			Name: "range_tree_leaves",
			Help: "Number of leaves per tree",
		}, []string{"tree"}),
	}
}

// Observe 记录一次操作的结果与耗时。r 为 nil 时什么都不做。
func (r *RangeMetrics) Observe(engine, aggregation, op string, start time.Time, err error) {
	if r == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	r.OperationsTotal.WithLabelValues(engine, aggregation, op, status).Inc()
	r.OperationDuration.WithLabelValues(engine, op).Observe(time.Since(start).Seconds())
}

// TreeAdded 记录新建的树。
func (r *RangeMetrics) TreeAdded(name string, leaves int) {
	if r == nil {
		return
	}
	r.TreesActive.Inc()
	r.Leaves.WithLabelValues(name).Set(float64(leaves))
}

// TreeRemoved 记录删除的树。
func (r *RangeMetrics) TreeRemoved(name string) {
	if r == nil {
		return
	}
	r.TreesActive.Dec()
	r.Leaves.DeleteLabelValues(name)
}

// IngestMetrics 更新指令消费相关指标。
type IngestMetrics struct {
	MessagesTotal  *prometheus.CounterVec   // 维度: topic, status
	HandleDuration *prometheus.HistogramVec // 维度: topic
}

func newIngestMetrics(m *Metrics) *IngestMetrics {
	return &IngestMetrics{
		MessagesTotal: m.NewCounterVec(prometheus.CounterOpts{
			Name: "range_ingest_messages_total",
			Help: "Total number of update commands consumed",
		}, []string{"topic", "status"}),
		HandleDuration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "range_ingest_handle_duration_seconds",
			Help:    "Time spent applying one update command",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

// Observe 记录一条消息的处理结果。
func (i *IngestMetrics) Observe(topic, status string, start time.Time) {
	if i == nil {
		return
	}
	i.MessagesTotal.WithLabelValues(topic, status).Inc()
	i.HandleDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}
