package units

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.Unit = (*RepresentativeUnit)(nil)

// RepresentativeUnit chooses one member of every group as its
// representative: the similarity medoid, i.e. the member whose summed
// similarity to the other members is largest. Pairs without a defined
// similarity add 0 to the sum, since the sum measures connectedness within
// the group. Ties go to the lowest profile identifier.
type RepresentativeUnit struct {
	name   string
	tracer trace.Tracer
}

// NewRepresentativeUnit creates a representative selection stage.
func NewRepresentativeUnit(name string) (*RepresentativeUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	return &RepresentativeUnit{
		name:   name,
		tracer: otel.Tracer("representative-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *RepresentativeUnit) Name() string { return u.name }

// Execute turns domain.KeyComponents into domain.KeyGroups using the
// similarities in domain.KeySimilarityMatrix.
func (u *RepresentativeUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "RepresentativeUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "representative"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	components, ok := domain.Get(state, domain.KeyComponents)
	if !ok {
		err := domain.MissingKeyError(domain.KeyComponents, "RepresentativeUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	matrix, ok := domain.Get(state, domain.KeySimilarityMatrix)
	if !ok {
		err := domain.MissingKeyError(domain.KeySimilarityMatrix, "RepresentativeUnit.Execute")
		span.RecordError(err)
		return state, err
	}

	groups := make([]domain.AffinityGroup, 0, len(components))
	for _, members := range components {
		if len(members) == 0 {
			err := domain.NewStateError(domain.KeyComponents.Name(), "RepresentativeUnit.Execute", domain.ErrInvalidState)
			span.RecordError(err)
			return state, err
		}
		sorted := slices.Clone(members)
		slices.Sort(sorted)
		groups = append(groups, domain.AffinityGroup{
			FormID:         matrix.FormID,
			Representative: SelectRepresentative(sorted, matrix),
			Members:        sorted,
		})
	}

	span.SetAttributes(attribute.Int("affinity.groups", len(groups)))
	return domain.With(state, domain.KeyGroups, groups), nil
}

// SelectRepresentative returns the medoid of members under matrix. members
// must be non-empty; a singleton's sole member is returned without scoring.
func SelectRepresentative(members []string, matrix domain.SimilarityMatrix) string {
	if len(members) == 1 {
		return members[0]
	}

	best := ""
	bestSum := -1.0
	for _, m := range members {
		var sum float64
		for _, other := range members {
			if s, ok := matrix.Get(m, other); ok {
				sum += s
			}
		}
		if sum > bestSum || (sum == bestSum && m < best) {
			best, bestSum = m, sum
		}
	}
	return best
}

// Validate has nothing to check; the unit carries no configuration.
func (u *RepresentativeUnit) Validate() error { return nil }
