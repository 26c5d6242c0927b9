package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObservePassDuration(500 * time.Millisecond)
	pr.ObserveExecuteDuration("sage", 120*time.Millisecond)
	pr.IncGroupOutcome(GroupSuccess)
	pr.IncGroupOutcome(GroupRetried)
	pr.IncGroupOutcome(GroupSuccess)
	pr.IncResults("stream", 3)
	pr.IncResults("image", 0)
	pr.IncKernelRetry("sage")
	pr.SetActiveWorkers(4)

	assert.InDelta(t, 2, testutil.ToFloat64(pr.groupOutcomes.WithLabelValues("success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pr.results.WithLabelValues("stream")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.kernelRetries.WithLabelValues("sage")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(pr.activeWorkers), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncGroupOutcome(GroupFailed)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sagecache_group_outcomes_total{outcome="failed"} 1`)
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObservePassDuration(time.Second)
		pr.IncGroupOutcome(GroupSkipped)
		pr.SetActiveWorkers(1)
	})
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObservePassDuration(time.Second)
		r.IncResults("error", 1)
	})
}
