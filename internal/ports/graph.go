package ports

import (
	"context"

	"github.com/ahrav/go-affinity/internal/domain"
)

// Executable defines the core contract for components that can be executed
// as one step of an affinity computation.
// Use Executable to implement units, pipelines, or any component that
// transforms State.
type Executable interface {
	// Execute processes the given state through this executable component
	// and returns the updated state along with any execution errors.
	// The context allows for cancellation and timeout control during execution.
	// Execute must be safe for concurrent use when called on different states.
	//
	// IMPORTANT: The input state is immutable and MUST NOT be modified.
	// domain.State uses copy-on-write semantics - use domain.With() or
	// state.WithMultiple() to create a new state with modifications.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns the unique string identifier for this executable component.
	// The ID must remain constant throughout the executable's lifetime.
	ID() string
}

// Pipeline defines a sequential execution container that runs multiple
// executables in strict order, where each executable's output becomes
// the input for the next executable in the sequence.
// The affinity computation is a pipeline: the matrix must exist before
// groups form, and groups must exist before representatives are chosen.
type Pipeline interface {
	Executable

	// Add appends an executable to the end of this pipeline's execution
	// sequence. Add returns an error if the executable is nil or its ID
	// duplicates one already in the pipeline.
	Add(exec Executable) error

	// Executables returns the complete ordered list of executables
	// in this pipeline, preserving the sequence in which they will execute.
	// The returned slice should not be modified by callers.
	Executables() []Executable
}
