package application

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/infrastructure/units"
)

// ValidateUnitParameters checks the parameters of a built-in unit type
// before the unit is constructed, so that a bad pipeline definition is
// reported with the offending key. Types the registry learned at runtime
// are left to their factories.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	paramMap, err := decodeParameters(params)
	if err != nil {
		return err
	}

	switch unitType {
	case UnitTypeSimilarityMatrix:
		return validateSimilarityMatrixParams(paramMap)
	case UnitTypeGroupFormation:
		return validateGroupFormationParams(paramMap)
	case UnitTypeSubmissionValidation, UnitTypeRepresentative, UnitTypeAffinityResult:
		if len(paramMap) > 0 {
			return fmt.Errorf("%s takes no parameters", unitType)
		}
		return nil
	default:
		return nil
	}
}

func decodeParameters(params yaml.Node) (map[string]any, error) {
	if params.Kind == 0 {
		return nil, nil
	}
	var paramMap map[string]any
	if err := params.Decode(&paramMap); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return paramMap, nil
}

func validateSimilarityMatrixParams(params map[string]any) error {
	for key, value := range params {
		switch key {
		case "numeric_range":
			n, ok := toFloat(value)
			if !ok || n < 0 {
				return fmt.Errorf("numeric_range must be a non-negative number")
			}
		case "numeric_fallback_range":
			n, ok := toFloat(value)
			if !ok || n <= 0 {
				return fmt.Errorf("numeric_fallback_range must be a positive number")
			}
		case "text_strategy":
			s, ok := value.(string)
			if !ok || !slices.Contains(textStrategies, units.TextStrategy(s)) {
				return fmt.Errorf("text_strategy must be one of %v", textStrategies)
			}
		case "workers":
			n, ok := value.(int)
			if !ok || n < 0 || n > 256 {
				return fmt.Errorf("workers must be an integer between 0 and 256")
			}
		default:
			return fmt.Errorf("unknown similarity_matrix parameter %q", key)
		}
	}
	return nil
}

func validateGroupFormationParams(params map[string]any) error {
	for key, value := range params {
		if key != "threshold" {
			return fmt.Errorf("unknown group_formation parameter %q", key)
		}
		n, ok := toFloat(value)
		if !ok || n <= 0 || n > 1 {
			return fmt.Errorf("threshold must be a number in (0, 1]")
		}
	}
	return nil
}

var textStrategies = []units.TextStrategy{units.TextTokenOverlap, units.TextLevenshtein}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// registerCustomValidators registers the struct tags used by pipeline
// definitions.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	return nil
}

// validateSemver accepts X.Y.Z where X, Y and Z are non-negative integers.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}
