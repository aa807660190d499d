package models

import (
	"encoding/json"
	"sort"
	"time"
)

// StepSet is a set of step ids. It serializes as a sorted JSON array.
type StepSet map[string]struct{}

func NewStepSet(ids ...string) StepSet {
	set := make(StepSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

func (s StepSet) Has(id string) bool {
	_, ok := s[id]

	return ok
}

// Sorted returns the ids in lexical order.
func (s StepSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (s StepSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StepSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}

	*s = NewStepSet(ids...)

	return nil
}

// WorkflowState is the persisted run ledger used to resume interrupted runs.
type WorkflowState struct {
	WorkflowPath   string    `json:"workflow_path"`
	CompletedSteps StepSet   `json:"completed_steps"`
	FailedStep     *string   `json:"failed_step"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewWorkflowState(workflowPath string) *WorkflowState {
	return &WorkflowState{
		WorkflowPath:   workflowPath,
		CompletedSteps: StepSet{},
		Timestamp:      time.Now().UTC(),
	}
}

// MarkCompleted records a success and clears any recorded failure.
func (s *WorkflowState) MarkCompleted(stepID string) {
	if s.CompletedSteps == nil {
		s.CompletedSteps = StepSet{}
	}

	s.CompletedSteps[stepID] = struct{}{}
	s.FailedStep = nil
	s.Timestamp = time.Now().UTC()
}

func (s *WorkflowState) MarkFailed(stepID string) {
	s.FailedStep = &stepID
	s.Timestamp = time.Now().UTC()
}

// Forget removes a step from the completed set.
func (s *WorkflowState) Forget(stepID string) {
	delete(s.CompletedSteps, stepID)
}

func (s *WorkflowState) IsCompleted(stepID string) bool {
	return s.CompletedSteps.Has(stepID)
}

// IsResume reports whether the ledger carries progress from an earlier run.
func (s *WorkflowState) IsResume() bool {
	return len(s.CompletedSteps) > 0 || s.FailedStep != nil
}
