// Package domain contains pure, dependency-free domain models and types
// for the affinity engine.
package domain

import (
	"fmt"
	"maps"
	"reflect"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string name, as used by WithMultiple.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used throughout the affinity pipeline.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyForm stores the form whose respondents are being grouped.
	KeyForm = Key[Form]{"form"}

	// KeyAnswers stores every submission received for the form.
	KeyAnswers = Key[[]Answer]{"answers"}

	// KeyThreshold stores the clustering cutoff in (0, 1].
	KeyThreshold = Key[float64]{"threshold"}

	// KeySimilarityMatrix stores the pairwise similarities of respondents.
	KeySimilarityMatrix = Key[SimilarityMatrix]{"similarity_matrix"}

	// KeyRespondents stores every respondent identifier, ascending.
	KeyRespondents = Key[[]string]{"respondents"}

	// KeyComponents stores the member sets produced by group formation,
	// before representatives are chosen.
	KeyComponents = Key[[][]string]{"components"}

	// KeyGroups stores the groups with their representatives.
	KeyGroups = Key[[]AffinityGroup]{"groups"}

	// KeyResult stores the assembled affinity result.
	KeyResult = Key[*AffinityResult]{"result"}

	// Execution context keys for tracking metadata across the pipeline.

	// KeyPipelineID stores the identifier of the pipeline being executed.
	KeyPipelineID = Key[string]{"execution.pipeline_id"}

	// KeyFormID stores the identifier of the form being computed, for
	// observability without copying the whole form.
	KeyFormID = Key[string]{"execution.form_id"}

	// KeyExecutionID stores a unique identifier for this specific execution
	// instance, useful for tracing and correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}
)

// cloneValue copies value so that no slice, map or pointer reachable
// through exported fields is shared with the caller. Nil slices and maps
// stay nil. Unexported struct fields are left at their zero value, so only
// plain record types belong in State.
func cloneValue(value any) any {
	if value == nil {
		return nil
	}
	return cloneReflect(reflect.ValueOf(value)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(cloneReflect(iter.Key()), cloneReflect(iter.Value()))
		}
		return out

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(cloneReflect(v.Elem()))
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := range v.NumField() {
			if out.Field(i).CanSet() {
				out.Field(i).Set(cloneReflect(v.Field(i)))
			}
		}
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneReflect(v.Elem()))
		return out

	default:
		return v
	}
}

// State represents an immutable collection of affinity data that flows
// through the pipeline. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary
// data structure for passing information between Units.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	form, ok := Get(state, KeyForm)
//	if !ok {
//	    // handle missing value
//	}
//	// form is typed as Form, no type assertion needed
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := cloneValue(value)
	val, ok := copied.(T)
	return val, ok
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged. This function is the
// primary way to add or update data in a State.
//
// Example:
//
//	newState := With(state, KeyThreshold, 0.5)
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	newData[key.name] = cloneValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added
// or updated. It is more efficient than chaining multiple With calls as
// it performs a single clone operation. The updates map uses string keys
// for flexibility when updating multiple values at once.
//
// Example:
//
//	updates := map[string]any{
//	    KeyThreshold.name: 0.5,
//	    KeyAnswers.name: []Answer{{ProfileID: "p1", FormID: "f1"}},
//	}
//	newState := state.WithMultiple(updates)
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	for k, v := range updates {
		newData[k] = cloneValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State.
// The returned slice can be used to iterate over all stored values and
// is safe to modify without affecting the original State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// ExecutionContext contains metadata about the current affinity computation
// that flows through the State. It provides consistent access to execution
// metadata for middleware and observability.
type ExecutionContext struct {
	// PipelineID identifies the pipeline executing the computation.
	PipelineID string

	// FormID identifies the form whose respondents are being grouped.
	FormID string

	// ExecutionID is a unique identifier for this specific execution instance.
	ExecutionID string
}

// WithExecutionContext creates a new State with execution context metadata
// included. It should be called before the pipeline runs.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	updates := map[string]any{
		KeyPipelineID.name:  ctx.PipelineID,
		KeyFormID.name:      ctx.FormID,
		KeyExecutionID.name: ctx.ExecutionID,
	}
	return s.WithMultiple(updates)
}

// GetExecutionContext extracts execution context metadata from the State.
// It returns the execution context and a boolean indicating whether all
// required context fields are present.
func (s State) GetExecutionContext() (ExecutionContext, bool) {
	pipelineID, ok1 := Get(s, KeyPipelineID)
	formID, ok2 := Get(s, KeyFormID)
	executionID, ok3 := Get(s, KeyExecutionID)

	if !ok1 || !ok2 || !ok3 {
		return ExecutionContext{}, false
	}

	return ExecutionContext{
		PipelineID:  pipelineID,
		FormID:      formID,
		ExecutionID: executionID,
	}, true
}
