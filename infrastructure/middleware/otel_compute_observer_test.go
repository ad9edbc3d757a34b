package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-affinity/internal/domain"
)

type recordedMetric struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

type mockMetrics struct {
	mu      sync.Mutex
	records []recordedMetric
}

func (m *mockMetrics) add(kind, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recordedMetric{kind: kind, name: name, value: value, labels: labels})
}

func (m *mockMetrics) RecordLatency(op string, d time.Duration, labels map[string]string) {
	m.add("latency", op, d.Seconds(), labels)
}

func (m *mockMetrics) RecordCounter(name string, v float64, labels map[string]string) {
	m.add("counter", name, v, labels)
}

func (m *mockMetrics) RecordGauge(name string, v float64, labels map[string]string) {
	m.add("gauge", name, v, labels)
}

func (m *mockMetrics) RecordHistogram(name string, v float64, labels map[string]string) {
	m.add("histogram", name, v, labels)
}

func (m *mockMetrics) find(kind, name string) []recordedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedMetric
	for _, r := range m.records {
		if r.kind == kind && r.name == name {
			out = append(out, r)
		}
	}
	return out
}

func TestOTelComputeObserver_Success(t *testing.T) {
	metrics := &mockMetrics{}
	obs := NewOTelComputeObserver(metrics)
	ctx := context.Background()

	m := domain.NewSimilarityMatrix("f")
	m.Set("a", "b", 0.9)
	result := &domain.AffinityResult{
		FormID: "f",
		Groups: []domain.AffinityGroup{
			{FormID: "f", Representative: "a", Members: []string{"a", "b"}},
			{FormID: "f", Representative: "c", Members: []string{"c"}},
		},
		Matrix: m,
	}

	obs.ComputeStarted(ctx, "f", 3)
	obs.ComputeFinished(ctx, "f", result, nil, 10*time.Millisecond)

	respondents := metrics.find("gauge", MetricRespondents)
	if assert.Len(t, respondents, 1) {
		assert.Equal(t, 3.0, respondents[0].value)
		assert.Equal(t, "f", respondents[0].labels["form_id"])
	}

	computations := metrics.find("counter", MetricComputations)
	if assert.Len(t, computations, 1) {
		assert.Equal(t, "success", computations[0].labels["status"])
	}

	groups := metrics.find("gauge", MetricGroups)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, 2.0, groups[0].value)
	}
	pairs := metrics.find("gauge", MetricMatrixPairs)
	if assert.Len(t, pairs, 1) {
		assert.Equal(t, 1.0, pairs[0].value)
	}

	sizes := metrics.find("histogram", MetricGroupSize)
	assert.Len(t, sizes, 2)
	assert.Len(t, metrics.find("latency", OperationCompute), 1)
}

func TestOTelComputeObserver_Failure(t *testing.T) {
	metrics := &mockMetrics{}
	obs := NewOTelComputeObserver(metrics)

	err := fmt.Errorf("pipeline affinity: %w", domain.NewTypeMismatchError("q1", "p", domain.QuestionNumeric, domain.QuestionOpenEnded))
	obs.ComputeFinished(context.Background(), "f", nil, err, time.Millisecond)

	computations := metrics.find("counter", MetricComputations)
	if assert.Len(t, computations, 1) {
		assert.Equal(t, "type_mismatch", computations[0].labels["status"])
	}
	assert.Empty(t, metrics.find("gauge", MetricGroups), "failed computations do not update shape gauges")
}

func TestOTelComputeObserver_NilMetrics(t *testing.T) {
	obs := NewOTelComputeObserver(nil)
	assert.NotPanics(t, func() {
		obs.ComputeStarted(context.Background(), "f", 1)
		obs.ComputeFinished(context.Background(), "f", &domain.AffinityResult{FormID: "f"}, nil, 0)
	})
}

func TestComputeStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{fmt.Errorf("x: %w", domain.ErrFormNotFound), "form_not_found"},
		{domain.ErrNoAnswers, "no_answers"},
		{domain.ErrInvalidAnswer, "invalid_answer"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, computeStatus(tt.err), "%v", tt.err)
	}
}
