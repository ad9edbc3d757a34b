package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ahrav/go-affinity/infrastructure/units"
	"github.com/ahrav/go-affinity/internal/ports"
)

// Unit type names understood by DefaultUnitRegistry and pipeline
// definitions.
const (
	UnitTypeSubmissionValidation = "submission_validation"
	UnitTypeSimilarityMatrix     = "similarity_matrix"
	UnitTypeGroupFormation       = "group_formation"
	UnitTypeRepresentative       = "representative"
	UnitTypeAffinityResult       = "affinity_result"
)

// Verify interface compliance at compile time.
var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// DefaultUnitRegistry implements the UnitRegistry interface providing
// a factory for creating affinity units based on type and configuration.
// It supports dynamic registration of additional unit factories.
type DefaultUnitRegistry struct {
	// factories maps unit type strings to their factory functions.
	factories map[string]ports.UnitFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultUnitRegistry creates a new unit registry with the affinity
// unit types pre-registered.
func NewDefaultUnitRegistry() *DefaultUnitRegistry {
	registry := &DefaultUnitRegistry{
		factories: make(map[string]ports.UnitFactory),
	}
	registry.registerBuiltinFactories()
	return registry
}

// registerBuiltinFactories registers the unit types that make up the
// affinity computation.
func (r *DefaultUnitRegistry) registerBuiltinFactories() {
	r.factories[UnitTypeSubmissionValidation] = func(id string, _ map[string]any) (ports.Unit, error) {
		unit, err := units.NewSubmissionValidationUnit(id)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}

	r.factories[UnitTypeSimilarityMatrix] = units.NewSimilarityMatrixFromConfig
	r.factories[UnitTypeGroupFormation] = units.NewGroupFormationFromConfig

	r.factories[UnitTypeRepresentative] = func(id string, _ map[string]any) (ports.Unit, error) {
		unit, err := units.NewRepresentativeUnit(id)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}

	r.factories[UnitTypeAffinityResult] = func(id string, _ map[string]any) (ports.Unit, error) {
		unit, err := units.NewAffinityResultUnit(id)
		if err != nil {
			return nil, err
		}
		return unit, nil
	}
}

// CreateUnit creates a new unit instance based on the provided type,
// identifier, and configuration.
func (r *DefaultUnitRegistry) CreateUnit(
	unitType string,
	id string,
	config map[string]any,
) (ports.Unit, error) {
	r.mu.RLock()
	factory, exists := r.factories[unitType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported unit type: %s", unitType)
	}

	if id == "" {
		return nil, fmt.Errorf("unit ID cannot be empty")
	}

	if config == nil {
		config = make(map[string]any)
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}

	return unit, nil
}

// RegisterUnitFactory registers a new factory function for a specific unit type.
// Registering an existing type replaces its factory.
func (r *DefaultUnitRegistry) RegisterUnitFactory(
	unitType string,
	factory ports.UnitFactory,
) error {
	if unitType == "" {
		return fmt.Errorf("unit type cannot be empty")
	}

	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[unitType] = factory
	return nil
}

// GetSupportedTypes returns the registered unit types in sorted order.
func (r *DefaultUnitRegistry) GetSupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for unitType := range r.factories {
		types = append(types, unitType)
	}
	sort.Strings(types)

	return types
}
