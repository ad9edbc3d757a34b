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

var _ ports.Unit = (*GroupFormationUnit)(nil)

// GroupFormationUnit partitions respondents into affinity groups: the
// connected components of the graph whose edges join pairs with a defined
// similarity at or above the threshold. Respondents without a qualifying
// edge become singleton groups, so every respondent lands in exactly one
// group and no group count has to be chosen up front.
//
// Members of each group are sorted ascending and groups are ordered by
// their lowest member, which makes the output independent of traversal
// order and of matrix iteration order.
type GroupFormationUnit struct {
	name   string
	config GroupFormationConfig
	tracer trace.Tracer
}

// GroupFormationConfig configures the clustering cutoff.
type GroupFormationConfig struct {
	// Threshold is the minimum similarity for an edge, in (0, 1].
	// A threshold stored in State under domain.KeyThreshold takes precedence.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lte=1"`
}

// NewGroupFormationUnit creates a clustering stage with validated configuration.
func NewGroupFormationUnit(name string, config GroupFormationConfig) (*GroupFormationUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidThreshold, err)
	}
	return &GroupFormationUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("group-formation-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (u *GroupFormationUnit) Name() string { return u.name }

// Execute clusters domain.KeyRespondents over domain.KeySimilarityMatrix and
// stores the member sets under domain.KeyComponents. The effective threshold
// is written back to domain.KeyThreshold so later stages report it.
func (u *GroupFormationUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := u.tracer.Start(ctx, "GroupFormationUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "group_formation"),
			attribute.String("unit.id", u.name),
		),
	)
	defer span.End()

	matrix, ok := domain.Get(state, domain.KeySimilarityMatrix)
	if !ok {
		err := domain.MissingKeyError(domain.KeySimilarityMatrix, "GroupFormationUnit.Execute")
		span.RecordError(err)
		return state, err
	}
	respondents, ok := domain.Get(state, domain.KeyRespondents)
	if !ok {
		err := domain.MissingKeyError(domain.KeyRespondents, "GroupFormationUnit.Execute")
		span.RecordError(err)
		return state, err
	}

	threshold := u.config.Threshold
	if t, ok := domain.Get(state, domain.KeyThreshold); ok {
		threshold = t
	}
	span.SetAttributes(attribute.Float64("affinity.threshold", threshold))

	components, err := u.Cluster(matrix, respondents, threshold)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.Int("affinity.respondents", len(respondents)),
		attribute.Int("affinity.groups", len(components)),
	)

	return state.WithMultiple(map[string]any{
		domain.KeyComponents.Name(): components,
		domain.KeyThreshold.Name():  threshold,
	}), nil
}

// Cluster returns the connected components of the threshold graph over
// respondents. Matrix entries naming profiles outside respondents are
// ignored; duplicate respondent identifiers are collapsed.
func (u *GroupFormationUnit) Cluster(matrix domain.SimilarityMatrix, respondents []string, threshold float64) ([][]string, error) {
	if !(threshold > 0 && threshold <= 1) {
		return nil, fmt.Errorf("%w: %v not in (0, 1]", domain.ErrInvalidThreshold, threshold)
	}

	ids := slices.Clone(respondents)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	uf := newUnionFind(len(ids))
	for pair, score := range matrix.Scores {
		if score < threshold {
			continue
		}
		a, okA := index[pair.A]
		b, okB := index[pair.B]
		if okA && okB {
			uf.union(a, b)
		}
	}

	// ids is ascending, so appending in index order yields sorted members and
	// the first time a root is seen is at its component's lowest member.
	byRoot := make(map[int]int)
	var components [][]string
	for i, id := range ids {
		root := uf.find(i)
		pos, seen := byRoot[root]
		if !seen {
			pos = len(components)
			byRoot[root] = pos
			components = append(components, nil)
		}
		components[pos] = append(components[pos], id)
	}
	return components, nil
}

// Validate verifies the unit's configuration.
func (u *GroupFormationUnit) Validate() error {
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidThreshold, err)
	}
	return nil
}

// unionFind is a disjoint-set forest with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// DefaultGroupFormationConfig returns a threshold of 0.5.
func DefaultGroupFormationConfig() GroupFormationConfig {
	return GroupFormationConfig{Threshold: 0.5}
}

// NewGroupFormationFromConfig creates a GroupFormationUnit from a
// configuration map. This is the boundary adapter for YAML/JSON configuration.
func NewGroupFormationFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultGroupFormationConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return nil, err
	}
	unit, err := NewGroupFormationUnit(id, cfg)
	if err != nil {
		return nil, err
	}
	return unit, nil
}
