package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrStateNotFound indicates no ledger has been persisted for a workflow.
	ErrStateNotFound = errors.New("workflow state not found")

	// ErrInvalidState indicates a persisted ledger could not be decoded.
	ErrInvalidState = errors.New("invalid workflow state")
)

// StateError wraps state store errors with the operation and workflow.
type StateError struct {
	Op       string // Operation being performed (e.g., "Load", "Save", "Delete")
	Workflow string // Workflow state key
	Err      error  // Underlying error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow state %s: %v", e.Op, e.Workflow, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for state errors.
func (e *StateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStateError creates a new state error with context.
func NewStateError(op, workflow string, err error) *StateError {
	return &StateError{
		Op:       op,
		Workflow: workflow,
		Err:      err,
	}
}

// IsStateNotFound checks if an error indicates a missing ledger.
func IsStateNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}
