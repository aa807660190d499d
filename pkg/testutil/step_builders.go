// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/stepflow/pkg/models"
)

// CreateTestStep creates a system-tool step with default values that can be overridden.
func CreateTestStep(id string, overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:      id,
		Tool:    "bash",
		Command: "echo " + id,
		Threads: 1,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithTool sets the step tool.
func WithTool(tool string) func(*models.Step) {
	return func(s *models.Step) {
		s.Tool = tool
	}
}

// WithCommand sets the step command template.
func WithCommand(command string) func(*models.Step) {
	return func(s *models.Step) {
		s.Command = command
	}
}

// WithThreads sets the thread requirement.
func WithThreads(threads int) func(*models.Step) {
	return func(s *models.Step) {
		s.Threads = threads
	}
}

// WithInputs sets the input files.
func WithInputs(files ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.Input = files
	}
}

// WithOutputs sets the output files.
func WithOutputs(files ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.Output = files
	}
}

// After makes the step depend on the given steps. Callers are expected to set
// the matching Next edges, or to run the workflow through workflow.Prepare.
func After(ids ...string) func(*models.Step) {
	return func(s *models.Step) {
		s.Previous = append(s.Previous, ids...)
	}
}

// CreateTestWorkflow links Next edges from the Previous edges of steps and
// returns the workflow.
func CreateTestWorkflow(path string, steps ...*models.Step) *models.Workflow {
	index := make(map[string]*models.Step, len(steps))
	for _, step := range steps {
		index[step.ID] = step
	}

	for _, step := range steps {
		for _, prev := range step.Previous {
			if parent, ok := index[prev]; ok {
				parent.Next = append(parent.Next, step.ID)
			}
		}
	}

	wf := &models.Workflow{Path: path, Steps: steps}
	wf.RefreshTools()

	return wf
}
