// Package units provides the affinity pipeline stages that implement the
// ports.Unit interface for the go-affinity engine, together with the pure
// scoring and aggregation components they are built from.
package units

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// TextStrategy selects how two non-identical OPEN_ENDED answers are compared
// once the normalized exact-match check has failed.
type TextStrategy string

// Supported text comparison strategies.
const (
	// TextTokenOverlap scores the share of whitespace-delimited tokens the two
	// answers have in common: |shared| / |union|.
	TextTokenOverlap TextStrategy = "token_overlap"

	// TextLevenshtein scores 1 - distance / max(runes) over the normalized
	// answers.
	TextLevenshtein TextStrategy = "levenshtein"
)

// Resource limits applied before any quadratic work starts.
const (
	// MaxRespondents is the maximum number of submissions accepted for one
	// matrix build.
	MaxRespondents = 5000

	// MaxStringLength is the maximum allowed length of an OPEN_ENDED answer (1MB).
	MaxStringLength = 1 << 20
)

// Common errors returned by units and their components.
var (
	// ErrNoScores is returned when no scores are provided for aggregation.
	ErrNoScores = errors.New("no scores provided for aggregation")

	// ErrInvalidScore is returned when a score is NaN, infinite, or outside [0, 1].
	ErrInvalidScore = errors.New("invalid score")

	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrTooManyRespondents is returned when a build exceeds MaxRespondents.
	ErrTooManyRespondents = errors.New("too many respondents")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
