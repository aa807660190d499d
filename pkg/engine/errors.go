package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStepFailed    = errors.New("step failed")
	ErrUnschedulable = errors.New("no step can be scheduled")
)

// StepExecutionError is returned when a step fails. The run stops dispatching
// at the first failure.
type StepExecutionError struct {
	StepID  string
	Message string
	Err     error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("workflow failed at step '%s': %s", e.StepID, e.Message)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionError) Is(target error) bool {
	return target == ErrStepFailed
}

// UnschedulableError is returned when work remains but nothing is running
// and nothing can start, typically a step requesting more threads than the
// ceiling allows.
type UnschedulableError struct {
	Steps         []string
	ThreadCeiling int
}

func (e *UnschedulableError) Error() string {
	return fmt.Sprintf("no step can be scheduled: %s (thread ceiling %d)",
		strings.Join(e.Steps, ", "), e.ThreadCeiling)
}

func (e *UnschedulableError) Is(target error) bool {
	return target == ErrUnschedulable
}
