// Package middleware provides cross-cutting concerns for the affinity
// service: metrics, tracing around computations, and HTTP rate limiting.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-affinity/internal/ports"
)

// Metric names understood by PrometheusMetrics. Other names fall through
// to the generic operation counter and state gauge.
const (
	MetricComputations  = "affinity_computations_total"
	MetricGroups        = "affinity_groups"
	MetricRespondents   = "affinity_respondents"
	MetricMatrixPairs   = "affinity_matrix_pairs"
	MetricGroupSize     = "affinity_group_size"
	MetricHTTPRequests  = "http_requests_total"
	MetricRateLimited   = "http_rate_limited_total"
	OperationCompute    = "compute_affinity"
	OperationHTTPServer = "http_request"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
type PrometheusMetrics struct {
	computations     *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	groupSize        prometheus.Histogram
	formGauges       *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its collectors with reg. Passing prometheus.DefaultRegisterer exposes
// them on the default /metrics handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		computations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricComputations,
				Help: "Affinity computations by outcome.",
			},
			[]string{"status"},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "affinity_operation_duration_seconds",
				Help:    "Duration of affinity operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		groupSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricGroupSize,
				Help:    "Number of members per affinity group.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		formGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "affinity_form_state",
				Help: "Shape of the latest result per form.",
			},
			[]string{"metric", "form_id"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequests,
				Help: "HTTP requests by route, method and status code.",
			},
			[]string{"route", "method", "code"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affinity_operations_total",
				Help: "Counters without a dedicated metric.",
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "affinity_system_state",
				Help: "Gauges without a dedicated metric.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records duration under the operation label.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	_ map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter increments the counter for metric.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricComputations:
		status, ok := labels["status"]
		if !ok {
			status = "unknown"
		}
		pm.computations.WithLabelValues(status).Add(value)
	case MetricHTTPRequests:
		pm.httpRequests.WithLabelValues(labels["route"], labels["method"], labels["code"]).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge for metric. Per-form gauges require a
// form_id label.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricGroups, MetricRespondents, MetricMatrixPairs:
		if formID, ok := labels["form_id"]; ok {
			pm.formGauges.WithLabelValues(metric, formID).Set(value)
			return
		}
		pm.systemGauges.WithLabelValues(metric).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram observes value for metric. Only group sizes have a
// dedicated histogram; other values are treated as durations in seconds.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, _ map[string]string,
) {
	if metric == MetricGroupSize {
		pm.groupSize.Observe(value)
		return
	}
	pm.executionLatency.WithLabelValues(metric).Observe(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
