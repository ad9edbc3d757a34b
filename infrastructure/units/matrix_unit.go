package units

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.Unit = (*SimilarityMatrixUnit)(nil)

// SimilarityMatrixUnit scores every unordered pair of distinct respondents
// and records the defined similarities in a domain.SimilarityMatrix. Pairs
// with no overlap are left out of the matrix rather than stored as zero.
//
// Cost is O(n²·q) for n respondents and q questions. With Workers > 0 the
// rows of the pair triangle are scored concurrently; results are collected
// per row and merged in row order, so the matrix is identical to a
// sequential build.
type SimilarityMatrixUnit struct {
	name     string
	config   SimilarityMatrixConfig
	scorer   *QuestionScorer
	pairwise *PairwiseAggregator
	tracer   trace.Tracer
}

// SimilarityMatrixConfig configures scoring and build parallelism.
type SimilarityMatrixConfig struct {
	ScorerConfig `yaml:",inline"`

	// Workers bounds the number of rows scored concurrently.
	// Zero builds sequentially.
	Workers int `yaml:"workers" json:"workers" validate:"min=0,max=256"`
}

// NewSimilarityMatrixUnit creates a matrix builder with validated configuration.
func NewSimilarityMatrixUnit(name string, config SimilarityMatrixConfig) (*SimilarityMatrixUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	scorer, err := NewQuestionScorer(config.ScorerConfig)
	if err != nil {
		return nil, err
	}

	return &SimilarityMatrixUnit{
		name:     name,
		config:   config,
		scorer:   scorer,
		pairwise: NewPairwiseAggregator(scorer, MeanAggregator{}),
		tracer:   otel.Tracer("similarity-matrix-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *SimilarityMatrixUnit) Name() string { return u.name }

// Execute builds the matrix for domain.KeyForm over domain.KeyAnswers and
// stores it under domain.KeySimilarityMatrix, together with the sorted
// respondent identifiers under domain.KeyRespondents.
func (u *SimilarityMatrixUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := u.tracer.Start(ctx, "SimilarityMatrixUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "similarity_matrix"),
			attribute.String("unit.id", u.name),
			attribute.String("config.text_strategy", string(u.config.TextStrategy)),
			attribute.Float64("config.numeric_range", u.config.NumericRange),
			attribute.Int("config.workers", u.config.Workers),
		),
	)
	defer span.End()

	start := time.Now()

	form, ok := domain.Get(state, domain.KeyForm)
	if !ok {
		err := domain.MissingKeyError(domain.KeyForm, "SimilarityMatrixUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	answers, ok := domain.Get(state, domain.KeyAnswers)
	if !ok {
		err := domain.MissingKeyError(domain.KeyAnswers, "SimilarityMatrixUnit.Execute")
		span.RecordError(err)
		return state, err
	}

	matrix, err := u.Build(ctx, form, answers)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	respondents := respondentIDs(answers)
	totalPairs := len(respondents) * (len(respondents) - 1) / 2
	span.SetAttributes(
		attribute.String("affinity.form_id", form.ID),
		attribute.Int("affinity.respondents", len(respondents)),
		attribute.Int("affinity.pairs_total", totalPairs),
		attribute.Int("affinity.pairs_defined", matrix.Len()),
		attribute.Int64("affinity.latency_ms", time.Since(start).Milliseconds()),
	)

	return state.WithMultiple(map[string]any{
		domain.KeySimilarityMatrix.Name(): matrix,
		domain.KeyRespondents.Name():      respondents,
	}), nil
}

// Build computes the similarity matrix of form over answers.
// Submissions are processed in ascending profile order regardless of input
// order. The first scoring error aborts the build.
func (u *SimilarityMatrixUnit) Build(ctx context.Context, form domain.Form, answers []domain.Answer) (domain.SimilarityMatrix, error) {
	if len(answers) > MaxRespondents {
		return domain.SimilarityMatrix{}, fmt.Errorf("%w: %d exceeds limit of %d",
			ErrTooManyRespondents, len(answers), MaxRespondents)
	}

	sorted := slices.Clone(answers)
	slices.SortFunc(sorted, func(a, b domain.Answer) int { return strings.Compare(a.ProfileID, b.ProfileID) })

	indexed := make([]respondent, len(sorted))
	for i, a := range sorted {
		indexed[i] = indexAnswer(a)
	}
	ranges := u.scorer.ResolveNumericRanges(form, sorted)

	rows := make([][]domain.PairScore, len(indexed))
	scoreRow := func(i int) error {
		var row []domain.PairScore
		for j := i + 1; j < len(indexed); j++ {
			score, ok, err := u.pairwise.aggregate(form, ranges, indexed[i], indexed[j])
			if err != nil {
				return err
			}
			if ok {
				row = append(row, domain.PairScore{A: indexed[i].id, B: indexed[j].id, Score: score})
			}
		}
		rows[i] = row
		return nil
	}

	if u.config.Workers > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(u.config.Workers)
		for i := range indexed {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return scoreRow(i)
			})
		}
		if err := g.Wait(); err != nil {
			return domain.SimilarityMatrix{}, fmt.Errorf("build similarity matrix: %w", err)
		}
	} else {
		for i := range indexed {
			if err := ctx.Err(); err != nil {
				return domain.SimilarityMatrix{}, err
			}
			if err := scoreRow(i); err != nil {
				return domain.SimilarityMatrix{}, fmt.Errorf("build similarity matrix: %w", err)
			}
		}
	}

	matrix := domain.NewSimilarityMatrix(form.ID)
	for _, row := range rows {
		for _, p := range row {
			matrix.Set(p.A, p.B, p.Score)
		}
	}
	return matrix, nil
}

// Validate verifies the unit's configuration.
func (u *SimilarityMatrixUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// respondentIDs returns the distinct profile identifiers of answers, ascending.
func respondentIDs(answers []domain.Answer) []string {
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ProfileID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// DefaultSimilarityMatrixConfig returns default scoring with a sequential build.
func DefaultSimilarityMatrixConfig() SimilarityMatrixConfig {
	return SimilarityMatrixConfig{
		ScorerConfig: DefaultScorerConfig(),
		Workers:      0,
	}
}

// NewSimilarityMatrixFromConfig creates a SimilarityMatrixUnit from a
// configuration map. This is the boundary adapter for YAML/JSON configuration.
func NewSimilarityMatrixFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultSimilarityMatrixConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return nil, err
	}
	unit, err := NewSimilarityMatrixUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// overlayConfig decodes a configuration map over the defaults already in dst.
func overlayConfig(config map[string]any, dst any) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
