package units

import (
	"fmt"
	"math"
	"strings"

	"github.com/ahrav/go-affinity/internal/domain"
)

// ScorerConfig controls how answers to a single question are compared.
type ScorerConfig struct {
	// NumericRange fixes the normalization range used for every NUMERIC
	// question. Zero means the range is observed per question from the
	// submitted answers.
	NumericRange float64 `yaml:"numeric_range" json:"numeric_range" validate:"min=0"`

	// NumericFallbackRange is used when the observed range is unusable:
	// fewer than two respondents answered, or all of them gave the same value.
	NumericFallbackRange float64 `yaml:"numeric_fallback_range" json:"numeric_fallback_range" validate:"gt=0"`

	// TextStrategy selects how non-identical OPEN_ENDED answers are compared.
	TextStrategy TextStrategy `yaml:"text_strategy" json:"text_strategy" validate:"required,oneof=token_overlap levenshtein"`
}

// DefaultScorerConfig returns the default scoring behavior: observed numeric
// ranges with a fallback of 1 and token-overlap text comparison.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		NumericRange:         0,
		NumericFallbackRange: 1,
		TextStrategy:         TextTokenOverlap,
	}
}

// NumericRanges maps a NUMERIC question identifier to its normalization range.
type NumericRanges map[string]float64

// QuestionScorer computes the similarity of two respondents' answers to one
// question. Dispatch is on the question's type tag; each type has its own
// strategy and its own notion of "no signal".
//
// QuestionScorer is immutable after construction and safe for concurrent use.
type QuestionScorer struct {
	config ScorerConfig
}

// NewQuestionScorer creates a scorer with a validated configuration.
func NewQuestionScorer(config ScorerConfig) (*QuestionScorer, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &QuestionScorer{config: config}, nil
}

// Config returns the scorer's configuration.
func (s *QuestionScorer) Config() ScorerConfig { return s.config }

// Score compares answers a and b to a question of type t and returns the
// similarity in [0, 1]. The boolean result is false when either side carries
// no signal, in which case the question must be left out of aggregation.
//
// normRange is only consulted for NUMERIC questions; a non-positive value
// falls back to the configured fallback range.
//
// Both answers must declare type t and carry a value consistent with it;
// anything else is reported as a *domain.ScoringError wrapping
// domain.ErrScoringTypeMismatch.
func (s *QuestionScorer) Score(t domain.QuestionType, a, b domain.QuestionAnswer, normRange float64) (float64, bool, error) {
	if !t.Valid() {
		return 0, false, domain.NewTypeMismatchError(a.QuestionID, "", t, a.Type)
	}
	for _, qa := range [...]domain.QuestionAnswer{a, b} {
		if qa.Type != t {
			return 0, false, domain.NewTypeMismatchError(qa.QuestionID, "", t, qa.Type)
		}
		if !qa.ConsistentValue() {
			return 0, false, domain.NewTypeMismatchError(qa.QuestionID, "", t, qa.ValueType())
		}
	}

	if !a.HasValue() || !b.HasValue() {
		return 0, false, nil
	}

	switch t {
	case domain.QuestionNumeric:
		return s.scoreNumeric(*a.Numeric, *b.Numeric, normRange), true, nil
	case domain.QuestionOpenEnded:
		return s.scoreText(*a.Text, *b.Text), true, nil
	case domain.QuestionMultipleChoice:
		return jaccard(a.Choices, b.Choices), true, nil
	default:
		return 0, false, domain.NewTypeMismatchError(a.QuestionID, "", t, a.Type)
	}
}

// scoreNumeric returns 1 - min(1, |a-b| / normRange).
func (s *QuestionScorer) scoreNumeric(a, b int64, normRange float64) float64 {
	if a == b {
		return 1.0
	}
	if normRange <= 0 {
		normRange = s.config.NumericFallbackRange
	}
	diff := math.Abs(float64(a) - float64(b))
	return 1.0 - math.Min(1.0, diff/normRange)
}

// scoreText gives 1.0 on a normalized case-insensitive exact match and
// otherwise defers to the configured strategy.
func (s *QuestionScorer) scoreText(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		return 1.0
	}
	if s.config.TextStrategy == TextLevenshtein {
		return levenshteinSimilarity(na, nb)
	}
	return tokenOverlap(na, nb)
}

// jaccard returns |A∩B| / |A∪B| over distinct option labels.
// Callers guarantee at least one side is non-empty.
func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, l := range a {
		setA[l] = struct{}{}
	}

	union := len(setA)
	shared := 0
	seen := make(map[string]struct{}, len(b))
	for _, l := range b {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		if _, ok := setA[l]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// ResolveNumericRanges computes the normalization range of every NUMERIC
// question of form once per build. A configured NumericRange wins; otherwise
// the range is max - min over the respondents who answered, falling back to
// NumericFallbackRange when fewer than two answered or the spread is zero.
func (s *QuestionScorer) ResolveNumericRanges(form domain.Form, answers []domain.Answer) NumericRanges {
	ranges := make(NumericRanges)
	for _, q := range form.Questions {
		if q.Type != domain.QuestionNumeric {
			continue
		}
		if s.config.NumericRange > 0 {
			ranges[q.ID] = s.config.NumericRange
			continue
		}

		var (
			lo, hi int64
			n      int
		)
		for _, a := range answers {
			qa, ok := a.Response(q.ID)
			if !ok || qa.Type != domain.QuestionNumeric || qa.Numeric == nil {
				continue
			}
			v := *qa.Numeric
			if n == 0 || v < lo {
				lo = v
			}
			if n == 0 || v > hi {
				hi = v
			}
			n++
		}

		spread := float64(hi) - float64(lo)
		if n < 2 || spread <= 0 {
			spread = s.config.NumericFallbackRange
		}
		ranges[q.ID] = spread
	}
	return ranges
}

// describeAnswer renders an answer value for error messages.
func describeAnswer(qa domain.QuestionAnswer) string {
	switch {
	case qa.Numeric != nil:
		return fmt.Sprintf("%d", *qa.Numeric)
	case qa.Text != nil:
		return fmt.Sprintf("%q", *qa.Text)
	case len(qa.Choices) > 0:
		return "[" + strings.Join(qa.Choices, ", ") + "]"
	default:
		return "<skipped>"
	}
}
