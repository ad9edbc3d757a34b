package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during affinity computation.
var (
	// ErrFormNotFound indicates that a requested form identifier has no
	// backing form.
	ErrFormNotFound = errors.New("form not found")

	// ErrNoAnswers indicates that a form exists but has no respondents, so
	// no grouping can be computed.
	ErrNoAnswers = errors.New("no answers submitted for form")

	// ErrScoringTypeMismatch indicates that an answer's question type
	// disagrees with the form's question of the same identifier. This is an
	// upstream data-integrity violation and is never coerced.
	ErrScoringTypeMismatch = errors.New("scoring type mismatch")

	// ErrInvalidAnswer indicates a structurally invalid submission, such as
	// a duplicate respondent or an option outside the question's universe.
	ErrInvalidAnswer = errors.New("invalid answer")

	// ErrInvalidThreshold indicates a clustering threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidState indicates that a State operation received invalid input.
	ErrInvalidState = errors.New("invalid state")

	// ErrKeyNotFound indicates that a requested StateKey does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ScoringError describes an integrity violation found while scoring one
// respondent's answer to one question.
type ScoringError struct {
	// QuestionID is the question whose answer failed.
	QuestionID string

	// ProfileID is the respondent who submitted the answer. It may be empty
	// when the failure is detected below the respondent level.
	ProfileID string

	// Expected is the type declared by the form.
	Expected QuestionType

	// Actual is the type carried by the answer.
	Actual QuestionType

	// Err is the underlying sentinel, usually ErrScoringTypeMismatch.
	Err error
}

// Error implements the error interface for ScoringError.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring error: question=%s, profile=%s, expected=%s, actual=%s, err=%v",
		e.QuestionID, e.ProfileID, e.Expected, e.Actual, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *ScoringError) Unwrap() error { return e.Err }

// NewTypeMismatchError creates a ScoringError wrapping ErrScoringTypeMismatch.
func NewTypeMismatchError(questionID, profileID string, expected, actual QuestionType) *ScoringError {
	return &ScoringError{
		QuestionID: questionID,
		ProfileID:  profileID,
		Expected:   expected,
		Actual:     actual,
		Err:        ErrScoringTypeMismatch,
	}
}

// StateError represents an error that occurred during State operations.
// It provides context about which key and operation caused the error.
type StateError struct {
	// Key is the name of the state key involved in the failed operation.
	Key string

	// Operation describes what operation was being performed when the error occurred.
	Operation string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// MissingKeyError reports a typed key absent from State.
func MissingKeyError[T any](key Key[T], operation string) *StateError {
	return NewStateError(key.name, operation, ErrKeyNotFound)
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures and wraps the sentinel that
// classifies them, so errors.Is works on the aggregate.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string

	// Kind is the sentinel classifying the failures, e.g. ErrInvalidAnswer.
	Kind error
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap returns the classifying sentinel.
func (e *ValidationError) Unwrap() error { return e.Kind }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf formats and adds a new error message.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.AddError(fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string, kind error) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
		Kind:   kind,
	}
}
