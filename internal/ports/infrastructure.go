package ports

import (
	"context"
	"io"
	"time"

	"github.com/ahrav/go-affinity/internal/domain"
)

// FormRepository provides read access to published forms.
type FormRepository interface {
	// GetForm returns the form with the given identifier, or an error
	// wrapping domain.ErrFormNotFound when none exists.
	GetForm(ctx context.Context, formID string) (domain.Form, error)
}

// AnswerRepository provides read access to the submissions for a form.
type AnswerRepository interface {
	// ListAnswers returns every submission for the form. An empty slice
	// with a nil error means the form has no respondents yet.
	ListAnswers(ctx context.Context, formID string) ([]domain.Answer, error)
}

// ProfileRepository resolves profile identifiers to profiles. It is only
// consulted to label exported results.
type ProfileRepository interface {
	// GetProfiles returns the profiles known for the given identifiers.
	// Unknown identifiers are omitted from the result rather than reported.
	GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}

// ActiveGroupStore holds the most recently computed affinity result for
// each form, from which a respondent's active group is derived. The store
// is owned by the caller of the affinity engine; the engine itself never
// holds a current selection.
type ActiveGroupStore interface {
	// SetActive records result as the active result for result.FormID,
	// replacing any previous one.
	SetActive(ctx context.Context, result domain.AffinityResult) error

	// Active returns the active result for formID and whether one is
	// recorded.
	Active(ctx context.Context, formID string) (domain.AffinityResult, bool, error)

	// Clear drops the active result for formID. Clearing an absent entry
	// is not an error.
	Clear(ctx context.Context, formID string) error
}

// ResultExporter renders an export record to a writer in one format.
type ResultExporter interface {
	// Format returns the format name, such as "json" or "yaml".
	Format() string

	// Export writes rec to w.
	Export(w io.Writer, rec domain.ExportRecord) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like cache hits/misses, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like respondent and group counts.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like pair similarities
	// or group sizes.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ComputeObserver is notified around every affinity computation. The
// span of the computation is carried in ctx.
type ComputeObserver interface {
	// ComputeStarted is called once the submissions are loaded.
	ComputeStarted(ctx context.Context, formID string, respondents int)

	// ComputeFinished is called with either a result or the error that
	// ended the computation.
	ComputeFinished(ctx context.Context, formID string, result *domain.AffinityResult, err error, elapsed time.Duration)
}
