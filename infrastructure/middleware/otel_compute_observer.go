package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.ComputeObserver = (*OTelComputeObserver)(nil)

// sparseGroupingRatio is the share of singleton groups at which a
// result is flagged as sparse on its span.
const sparseGroupingRatio = 0.9

// OTelComputeObserver annotates the active span of each affinity
// computation and forwards its outcome to a MetricsCollector. It holds no
// per-computation state and is safe for concurrent use.
type OTelComputeObserver struct {
	metrics ports.MetricsCollector
}

// NewOTelComputeObserver creates an observer. metrics may be nil, in
// which case only span data is recorded.
func NewOTelComputeObserver(metrics ports.MetricsCollector) *OTelComputeObserver {
	return &OTelComputeObserver{metrics: metrics}
}

// ComputeStarted records the respondent count on the current span.
func (o *OTelComputeObserver) ComputeStarted(ctx context.Context, formID string, respondents int) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("affinity.compute.started", trace.WithAttributes(
		attribute.String("affinity.form_id", formID),
		attribute.Int("affinity.respondents", respondents),
	))

	if o.metrics != nil {
		o.metrics.RecordGauge(MetricRespondents, float64(respondents), map[string]string{"form_id": formID})
	}
}

// ComputeFinished records the outcome of a computation.
func (o *OTelComputeObserver) ComputeFinished(
	ctx context.Context,
	formID string,
	result *domain.AffinityResult,
	err error,
	elapsed time.Duration,
) {
	span := trace.SpanFromContext(ctx)
	status := computeStatus(err)

	if o.metrics != nil {
		o.metrics.RecordLatency(OperationCompute, elapsed, map[string]string{"form_id": formID})
		o.metrics.RecordCounter(MetricComputations, 1, map[string]string{"status": status})
	}

	if err != nil {
		span.AddEvent("affinity.compute.failed", trace.WithAttributes(
			attribute.String("affinity.status", status),
		))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if result == nil {
		return
	}

	singletons := 0
	for _, g := range result.Groups {
		if len(g.Members) == 1 {
			singletons++
		}
	}

	span.AddEvent("affinity.compute.finished", trace.WithAttributes(
		attribute.Int("affinity.group_count", len(result.Groups)),
		attribute.Int("affinity.singleton_groups", singletons),
		attribute.Int("affinity.defined_pairs", result.Matrix.Len()),
		attribute.Float64("affinity.threshold", result.Threshold),
	))
	if n := len(result.Groups); n > 1 && float64(singletons)/float64(n) >= sparseGroupingRatio {
		span.AddEvent("affinity.grouping.sparse", trace.WithAttributes(
			attribute.String("affinity.singleton_share", strconv.FormatFloat(float64(singletons)/float64(n), 'f', 2, 64)),
		))
	}

	o.updateMetrics(formID, result)
}

func (o *OTelComputeObserver) updateMetrics(formID string, result *domain.AffinityResult) {
	if o.metrics == nil {
		return
	}

	labels := map[string]string{"form_id": formID}
	o.metrics.RecordGauge(MetricGroups, float64(len(result.Groups)), labels)
	o.metrics.RecordGauge(MetricMatrixPairs, float64(result.Matrix.Len()), labels)
	for _, g := range result.Groups {
		o.metrics.RecordHistogram(MetricGroupSize, float64(len(g.Members)), labels)
	}
}

// computeStatus maps an outcome to a low-cardinality status label.
func computeStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrFormNotFound):
		return "form_not_found"
	case errors.Is(err, domain.ErrNoAnswers):
		return "no_answers"
	case errors.Is(err, domain.ErrScoringTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, domain.ErrInvalidAnswer):
		return "invalid_answer"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
