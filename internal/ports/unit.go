// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-affinity/internal/domain"
)

// Unit represents the fundamental building block of the affinity pipeline.
// Each Unit performs a specific transformation on the affinity State,
// such as scoring respondent pairs or partitioning them into groups.
// Units should be stateless and thread-safe for concurrent execution.
type Unit interface {
	// Name returns a unique identifier for this unit.
	// The name is used for logging, debugging, and configuration.
	Name() string

	// Execute performs the unit's transformation on the provided State.
	// It returns a new State containing the results of the transformation.
	// The original State should not be modified (immutability principle).
	// Any errors during execution should be returned rather than panicking.
	//
	// The context parameter allows for cancellation and deadline propagation.
	// Units should respect context cancellation and return promptly.
	//
	// Example:
	//
	//	newState, err := unit.Execute(ctx, state)
	//	if err != nil {
	//	    return domain.State{}, fmt.Errorf("unit %s failed: %w", unit.Name(), err)
	//	}
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate checks if the unit is properly configured and ready for execution.
	// It is typically called during pipeline construction or before execution.
	// Return nil if validation passes, or an error describing what is invalid.
	//
	// Example validations:
	// - Thresholds lie in (0, 1]
	// - Numeric ranges are positive
	// - Text strategies are recognized
	Validate() error
}

// UnitFactory builds a Unit with the given identifier from a raw
// configuration map, as decoded from YAML or JSON.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry maps unit type names to the factories that build them.
type UnitRegistry interface {
	// CreateUnit builds a unit of the named type.
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)

	// RegisterUnitFactory adds or replaces the factory for unitType.
	RegisterUnitFactory(unitType string, factory UnitFactory) error

	// GetSupportedTypes lists the registered unit types.
	GetSupportedTypes() []string
}
