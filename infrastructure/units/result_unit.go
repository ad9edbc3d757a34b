package units

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.Unit = (*AffinityResultUnit)(nil)

// AffinityResultUnit packages groups, threshold and matrix into the
// domain.AffinityResult handed to callers. Before doing so it checks that
// the groups form a total partition of the respondents with every
// representative inside its own group; a violation means an earlier stage
// is broken and is reported as domain.ErrInvalidState.
type AffinityResultUnit struct {
	name   string
	tracer trace.Tracer
}

// NewAffinityResultUnit creates a result assembly stage.
func NewAffinityResultUnit(name string) (*AffinityResultUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &AffinityResultUnit{
		name:   name,
		tracer: otel.Tracer("affinity-result-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *AffinityResultUnit) Name() string { return u.name }

// Validate always succeeds; the unit has no configuration.
func (u *AffinityResultUnit) Validate() error { return nil }

// Execute reads domain.KeyGroups, domain.KeySimilarityMatrix,
// domain.KeyRespondents and domain.KeyThreshold and stores the assembled
// result under domain.KeyResult.
func (u *AffinityResultUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "AffinityResultUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "affinity_result"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	if exec, ok := state.GetExecutionContext(); ok {
		span.SetAttributes(
			attribute.String("execution.pipeline_id", exec.PipelineID),
			attribute.String("execution.id", exec.ExecutionID),
		)
	}

	groups, ok := domain.Get(state, domain.KeyGroups)
	if !ok {
		err := domain.MissingKeyError(domain.KeyGroups, "AffinityResultUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	matrix, ok := domain.Get(state, domain.KeySimilarityMatrix)
	if !ok {
		err := domain.MissingKeyError(domain.KeySimilarityMatrix, "AffinityResultUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	respondents, ok := domain.Get(state, domain.KeyRespondents)
	if !ok {
		err := domain.MissingKeyError(domain.KeyRespondents, "AffinityResultUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	threshold, ok := domain.Get(state, domain.KeyThreshold)
	if !ok {
		err := domain.MissingKeyError(domain.KeyThreshold, "AffinityResultUnit.Execute")
		span.RecordError(err)
		return state, err
	}

	result, err := Assemble(matrix.FormID, threshold, groups, matrix, respondents)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.String("affinity.form_id", result.FormID),
		attribute.Int("affinity.groups", len(result.Groups)),
		attribute.Int("affinity.pairs_defined", result.Matrix.Len()),
	)
	return domain.With(state, domain.KeyResult, result), nil
}

// Assemble builds an AffinityResult after checking the partition invariant:
// groups are non-empty, pairwise disjoint, cover respondents exactly, and
// each representative is one of its group's members.
func Assemble(
	formID string,
	threshold float64,
	groups []domain.AffinityGroup,
	matrix domain.SimilarityMatrix,
	respondents []string,
) (*domain.AffinityResult, error) {
	expected := make(map[string]struct{}, len(respondents))
	for _, id := range respondents {
		expected[id] = struct{}{}
	}

	placed := make(map[string]string, len(respondents))
	out := make([]domain.AffinityGroup, 0, len(groups))
	for i, g := range groups {
		if len(g.Members) == 0 {
			return nil, partitionError("group %d is empty", i)
		}
		members := slices.Clone(g.Members)
		slices.Sort(members)
		if _, found := slices.BinarySearch(members, g.Representative); !found {
			return nil, partitionError("representative %s is not a member of group %d", g.Representative, i)
		}
		for _, m := range members {
			if _, ok := expected[m]; !ok {
				return nil, partitionError("group %d contains non-respondent %s", i, m)
			}
			if prev, dup := placed[m]; dup {
				return nil, partitionError("%s appears in groups led by %s and %s", m, prev, g.Representative)
			}
			placed[m] = g.Representative
		}
		out = append(out, domain.AffinityGroup{
			FormID:         formID,
			Representative: g.Representative,
			Members:        members,
		})
	}
	if len(placed) != len(expected) {
		return nil, partitionError("%d of %d respondents placed", len(placed), len(expected))
	}

	return &domain.AffinityResult{
		FormID:    formID,
		Threshold: threshold,
		Groups:    out,
		Matrix:    matrix,
	}, nil
}

func partitionError(format string, args ...any) error {
	return domain.NewStateError(domain.KeyGroups.Name(), "Assemble",
		fmt.Errorf("%w: %s", domain.ErrInvalidState, fmt.Sprintf(format, args...)))
}
