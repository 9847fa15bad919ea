package takeput

import (
	"fmt"
)

// Phases of a work item in which an ItemError can occur
const (
	PhaseValidate = "validate"
	PhaseTake     = "take"
	PhaseProcess  = "process"
	PhasePutBack  = "put_back"
)

// ItemError describes the failure of a single work item.
type ItemError struct {
	// Position is the index of the work item in the pairs passed to Dispatch
	Position int
	// Phase indicates which step of the work item failed
	Phase string
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("work item %d failed during %s: %v", e.Position, e.Phase, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Cause
}

// PanicError carries a value recovered from a panicking processor.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("processor panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
