// Package metrics defines the Prometheus collectors for HTTP traffic and
// pipeline stages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbagent"

// Pipeline outcomes.
const (
	OutcomeDone     = "done"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors. A nil *Metrics records nothing, so
// components can be built without a registry in tests.
type Metrics struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pipelineRunsTotal          *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	stageFailuresTotal         *prometheus.CounterVec
	stageRetriesTotal          *prometheus.CounterVec
	resultRows                 prometheus.Histogram
	truncatedResultsTotal      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		pipelineRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Questions processed, by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		stageDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_duration_seconds",
				Help:      "Time spent in each pipeline stage, retries included.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		stageFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_failures_total",
				Help:      "Stage failures by stage and error kind.",
			},
			[]string{"stage", "kind"},
		),
		stageRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stage_retries_total",
				Help:      "Retried stage attempts after a transient failure.",
			},
			[]string{"stage"},
		),
		resultRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_result_rows",
				Help:      "Rows returned by executed queries.",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		truncatedResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_results_truncated_total",
				Help:      "Executed queries whose result hit the row cap.",
			},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDurationSeconds,
		m.pipelineRunsTotal,
		m.stageDurationSeconds,
		m.stageFailuresTotal,
		m.stageRetriesTotal,
		m.resultRows,
		m.truncatedResultsTotal,
	)
	return m
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

// ObservePipeline records the outcome of one question.
func (m *Metrics) ObservePipeline(mode, outcome string) {
	if m == nil {
		return
	}
	m.pipelineRunsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveStage records the time spent in a stage.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveFailure records a stage failure.
func (m *Metrics) ObserveFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.stageFailuresTotal.WithLabelValues(stage, kind).Inc()
}

// IncRetry records one retried attempt.
func (m *Metrics) IncRetry(stage string) {
	if m == nil {
		return
	}
	m.stageRetriesTotal.WithLabelValues(stage).Inc()
}

// ObserveResult records the size of an executed query's result.
func (m *Metrics) ObserveResult(rows int, truncated bool) {
	if m == nil {
		return
	}
	m.resultRows.Observe(float64(rows))
	if truncated {
		m.truncatedResultsTotal.Inc()
	}
}

// Handler serves the collectors registered with g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
