package units

import (
	"fmt"
	"math"

	"github.com/ahrav/go-affinity/internal/domain"
)

var _ domain.Aggregator = MeanAggregator{}

// MeanAggregator combines per-question similarities with an unweighted
// arithmetic mean (Σscores / count). Every question counts equally
// regardless of its type.
//
// Precision: uses IEEE 754 double-precision arithmetic and sums in input
// order, so identical inputs in identical order give a bit-for-bit identical
// result. NaN, infinite and out-of-range values are rejected rather than
// propagated into the matrix.
//
// Concurrency: stateless and safe for concurrent use.
type MeanAggregator struct{}

// Aggregate returns the arithmetic mean of scores.
// It fails with ErrNoScores on an empty input and ErrInvalidScore on any
// value that is not a finite number in [0, 1].
func (MeanAggregator) Aggregate(scores []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, ErrNoScores
	}

	var sum float64
	for i, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
			return 0, fmt.Errorf("%w at index %d: %f", ErrInvalidScore, i, score)
		}
		sum += score
	}

	return sum / float64(len(scores)), nil
}
