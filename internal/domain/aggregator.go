package domain

// Aggregator combines the per-question similarity scores of one respondent
// pair into a single composite similarity.
// Implementations must be deterministic: identical inputs in identical order
// produce a bit-for-bit identical result.
type Aggregator interface {
	// Aggregate combines scores, each in [0,1], into one value in [0,1].
	// The scores slice never contains "no signal" entries; callers exclude
	// them before aggregating.
	//
	// The method should handle edge cases such as:
	//   - Empty score lists (return error)
	//   - NaN, infinite or out-of-range values (return error)
	//
	// Example:
	//
	//	scores := []float64{1.0, 0.75}
	//	similarity, err := aggregator.Aggregate(scores) // 0.875
	Aggregate(scores []float64) (float64, error)
}
