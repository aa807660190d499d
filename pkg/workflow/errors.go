package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkflow indicates the workflow failed structural validation.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrCyclicDependency indicates the dependency graph contains a cycle.
	ErrCyclicDependency = errors.New("workflow contains cyclic dependencies")

	// ErrAmbiguousProducer indicates two steps declare the same output file.
	ErrAmbiguousProducer = errors.New("multiple steps produce the same file")

	// ErrMultipleWildcards indicates a step uses more than one wildcard name.
	ErrMultipleWildcards = errors.New("multiple wildcard names in one step")

	// ErrWildcardUnbound indicates a wildcard name has no file mapping.
	ErrWildcardUnbound = errors.New("no file mapping for wildcard")
)

// Violation is a single structural problem found in a workflow.
type Violation struct {
	StepID  string
	Message string
}

func (v Violation) String() string {
	return v.Message
}

// StructuralError collects every violation found in one validation pass.
type StructuralError struct {
	Violations []Violation
}

func (e *StructuralError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}

	return fmt.Sprintf("workflow validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrInvalidWorkflow
}

// CyclicDependencyError lists the steps that could not be ordered.
type CyclicDependencyError struct {
	Remaining []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s (involving: %s)", ErrCyclicDependency, strings.Join(e.Remaining, ", "))
}

func (e *CyclicDependencyError) Is(target error) bool {
	return target == ErrCyclicDependency || target == ErrInvalidWorkflow
}

// AmbiguousProducerError is raised in implicit mode when one file has two producers.
type AmbiguousProducerError struct {
	File   string
	First  string
	Second string
}

func (e *AmbiguousProducerError) Error() string {
	return fmt.Sprintf("multiple steps produce '%s': '%s' and '%s'", e.File, e.First, e.Second)
}

func (e *AmbiguousProducerError) Is(target error) bool {
	return target == ErrAmbiguousProducer || target == ErrInvalidWorkflow
}

// WildcardError reports a wildcard expansion failure for one step.
type WildcardError struct {
	StepID string
	Names  []string
	Err    error
}

func (e *WildcardError) Error() string {
	return fmt.Sprintf("step '%s': %v: %s", e.StepID, e.Err, strings.Join(e.Names, ", "))
}

func (e *WildcardError) Unwrap() error {
	return e.Err
}

func (e *WildcardError) Is(target error) bool {
	return target == ErrInvalidWorkflow
}
