package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeMetrics_Observe(t *testing.T) {
	m := NewMetrics("test")
	start := time.Now()

	m.Range.Observe("recursive", "sum", "query", start, nil)
	m.Range.Observe("recursive", "sum", "query", start, nil)
	m.Range.Observe("iterative", "min", "update_range", start, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Range.OperationsTotal.WithLabelValues("recursive", "sum", "query", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Range.OperationsTotal.WithLabelValues("iterative", "min", "update_range", StatusError)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Range.OperationDuration))
}

func TestRangeMetrics_Trees(t *testing.T) {
	m := NewMetrics("test")
	m.Range.TreeAdded("a", 5)
	m.Range.TreeAdded("b", 8)
	m.Range.TreeRemoved("a")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Range.TreesActive))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.Range.Leaves.WithLabelValues("b")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Range.Leaves))
}

func TestNilMetrics(t *testing.T) {
	var r *RangeMetrics
	var i *IngestMetrics
	assert.NotPanics(t, func() {
		r.Observe("e", "a", "op", time.Now(), nil)
		r.TreeAdded("x", 1)
		r.TreeRemoved("x")
		i.Observe("topic", StatusOK, time.Now())
	})
}

func TestHandler_ExposesBuildInfo(t *testing.T) {
	m := NewMetrics("test")
	m.RegisterBuildInfo("rangeserver", "1.2.3", "")
	m.RegisterBuildInfo("rangeserver", "ignored", "iterative")
	m.Ingest.Observe("updates", StatusOK, time.Now())

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `build_info{default_engine="unknown",go_version="`+runtime.Version()+`",service="rangeserver",version="1.2.3"} 1`)
	assert.Contains(t, string(body), `range_ingest_messages_total{status="ok",topic="updates"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
