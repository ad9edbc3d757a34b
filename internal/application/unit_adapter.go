package application

import (
	"context"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

// UnitAdapter wraps a ports.Unit to implement the ports.Executable
// interface so affinity units can be placed in a Pipeline.
type UnitAdapter struct {
	// unit is the underlying affinity unit that performs the actual
	// work when Execute is called.
	unit ports.Unit
	// id is the identifier of this step within its pipeline.
	id string
}

// NewUnitAdapter creates a new adapter that wraps unit under the given
// pipeline step id.
func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{
		unit: unit,
		id:   id,
	}
}

// Execute delegates to the underlying unit's Execute method.
func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

// ID returns the unique string identifier for this adapter.
func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
