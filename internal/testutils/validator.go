package testutils

import (
	"github.com/go-playground/validator/v10"
)

// NewTestValidator creates a new validator instance for testing.
// Struct tags are reported by their yaml names so failures read like the
// dataset file.
func NewTestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(yamlTagName)
	return v
}
