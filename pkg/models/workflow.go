// Package models defines the core domain models for dependency-driven step execution
package models

import (
	"slices"
	"sort"
)

// Workflow is an ordered collection of steps plus the derived set of tools they use.
type Workflow struct {
	Path  string   `json:"path,omitempty" yaml:"-"`
	Steps []*Step  `json:"steps"          yaml:"steps"`
	Tools []string `json:"tools,omitempty" yaml:"-"`
}

// Step returns the step with the given id, or nil.
func (w *Workflow) Step(id string) *Step {
	for _, step := range w.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// StepIDs returns step ids in declaration order.
func (w *Workflow) StepIDs() []string {
	ids := make([]string, 0, len(w.Steps))
	for _, step := range w.Steps {
		ids = append(ids, step.ID)
	}

	return ids
}

// RefreshTools recomputes the sorted set of distinct tools.
func (w *Workflow) RefreshTools() {
	seen := make(map[string]struct{}, len(w.Steps))
	tools := make([]string, 0, len(w.Steps))

	for _, step := range w.Steps {
		if step.Tool == "" {
			continue
		}

		if _, ok := seen[step.Tool]; ok {
			continue
		}

		seen[step.Tool] = struct{}{}
		tools = append(tools, step.Tool)
	}

	sort.Strings(tools)
	w.Tools = tools
}

// RootSteps returns steps with no predecessors.
func (w *Workflow) RootSteps() []*Step {
	var roots []*Step

	for _, step := range w.Steps {
		if len(step.Previous) == 0 {
			roots = append(roots, step)
		}
	}

	return roots
}

// LeafSteps returns steps with no successors.
func (w *Workflow) LeafSteps() []*Step {
	var leaves []*Step

	for _, step := range w.Steps {
		if len(step.Next) == 0 {
			leaves = append(leaves, step)
		}
	}

	return leaves
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	clone := &Workflow{
		Path:  w.Path,
		Steps: make([]*Step, 0, len(w.Steps)),
		Tools: slices.Clone(w.Tools),
	}

	for _, step := range w.Steps {
		s := step.Clone()
		clone.Steps = append(clone.Steps, &s)
	}

	return clone
}
