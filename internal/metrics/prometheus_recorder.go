package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sagecache"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	passDuration    prom.Histogram
	executeDuration *prom.HistogramVec
	groupOutcomes   *prom.CounterVec
	results         *prom.CounterVec
	kernelRetries   *prom.CounterVec
	activeWorkers   prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		passDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of evaluation passes",
			Buckets:   prom.DefBuckets,
		}),
		executeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "execute_duration_seconds",
			Help:      "Duration of single code block executions",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 10),
		}, []string{"platform"}),
		groupOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "group_outcomes_total",
			Help:      "Source group evaluations by outcome",
		}, []string{"outcome"}),
		results: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Results persisted by kind",
		}, []string{"kind"}),
		kernelRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "kernel_retries_total",
			Help:      "Groups retried on a fresh kernel session",
		}, []string{"platform"}),
		activeWorkers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Source group workers currently running",
		}),
	}
	reg.MustRegister(pr.passDuration, pr.executeDuration, pr.groupOutcomes, pr.results, pr.kernelRetries, pr.activeWorkers)
	return pr
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveExecuteDuration(platform string, d time.Duration) {
	if p == nil {
		return
	}
	p.executeDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGroupOutcome(outcome GroupOutcome) {
	if p == nil {
		return
	}
	p.groupOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncResults(kind string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.results.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusRecorder) IncKernelRetry(platform string) {
	if p == nil {
		return
	}
	p.kernelRetries.WithLabelValues(platform).Inc()
}

func (p *PrometheusRecorder) SetActiveWorkers(n int) {
	if p == nil {
		return
	}
	p.activeWorkers.Set(float64(n))
}
