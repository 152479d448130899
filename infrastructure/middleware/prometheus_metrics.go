// Package middleware provides cross-cutting observability for the grader.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kcay/local-ai-grader/internal/ports"
)

const namespace = "grader"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// Known metric names are routed to dedicated vectors; anything else lands in
// the generic operation counter, latency histogram and state gauge.
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	httpAttempts     *prometheus.CounterVec
	aiRequests       *prometheus.CounterVec
	aiDuration       *prometheus.HistogramVec
	aiUnstructured   *prometheus.CounterVec
	promptTokens     *prometheus.HistogramVec
	circuitEvents    *prometheus.CounterVec
	gradingAttempts  *prometheus.CounterVec
	droppedCriteria  *prometheus.CounterVec
	gradeRatio       *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses a fresh registry.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		gatherer: reg,

		httpAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_attempts_total",
				Help:      "HTTP attempts made to AI providers, by status code and outcome.",
			},
			[]string{"provider", "status", "outcome"},
		),
		aiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Provider requests after retries, by final status.",
			},
			[]string{"provider", "model", "status"},
		),
		aiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "Provider request time including retries and backoff.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "model", "status"},
		),
		aiUnstructured: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_unstructured_responses_total",
				Help:      "Successful provider replies that did not decode as JSON.",
			},
			[]string{"provider"},
		),
		promptTokens: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_prompt_tokens",
				Help:      "Estimated prompt tokens sent to each provider.",
				Buckets:   prometheus.ExponentialBuckets(128, 2, 10),
			},
			[]string{"provider"},
		),
		circuitEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_events_total",
				Help:      "Circuit breaker trips and rejected requests per provider.",
			},
			[]string{"provider", "event"},
		),
		gradingAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grading_attempts_total",
				Help:      "Grading attempts by mode, provider and result.",
			},
			[]string{"mode", "provider", "status"},
		),
		droppedCriteria: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_criteria_total",
				Help:      "Criterion scores dropped because their ID matched no rubric criterion.",
			},
			[]string{"provider"},
		),
		gradeRatio: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grade_ratio",
				Help:      "Adjusted grade as a fraction of the assignment maximum.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"mode"},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of grader operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Operations performed by the grader.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Current state values such as batch progress.",
			},
			[]string{"metric"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.gatherer, promhttp.HandlerOpts{})
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.executionLatency.WithLabelValues(operation, labelOr(labels, "provider")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "http_attempts_total":
		pm.httpAttempts.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "status"), labelOr(labels, "outcome")).Add(value)
	case "ai_requests_total":
		pm.aiRequests.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "status")).Add(value)
	case "ai_unstructured_responses_total":
		pm.aiUnstructured.WithLabelValues(labelOr(labels, "provider")).Add(value)
	case "circuit_events_total":
		pm.circuitEvents.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "event")).Add(value)
	case "grading_attempts_total":
		pm.gradingAttempts.WithLabelValues(labelOr(labels, "mode"), labelOr(labels, "provider"), labelOr(labels, "status")).Add(value)
	case "dropped_criteria_total":
		pm.droppedCriteria.WithLabelValues(labelOr(labels, "provider")).Add(value)
	default:
		status, ok := labels["status"]
		if !ok || status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "ai_request_duration_seconds":
		pm.aiDuration.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "status")).Observe(value)
	case "ai_prompt_tokens":
		pm.promptTokens.WithLabelValues(labelOr(labels, "provider")).Observe(value)
	case "grade_ratio":
		pm.gradeRatio.WithLabelValues(labelOr(labels, "mode")).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, labelOr(labels, "provider")).Observe(value)
	}
}

func labelOr(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
