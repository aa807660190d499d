package web

import (
	"time"

	"github.com/dukex/stepflow/pkg/models"
)

// StateResponse is the persisted ledger of one workflow.
type StateResponse struct {
	Workflow       string    `json:"workflow"`
	WorkflowPath   string    `json:"workflow_path"`
	CompletedSteps []string  `json:"completed_steps"`
	FailedStep     *string   `json:"failed_step"`
	Timestamp      time.Time `json:"timestamp"`
}

// PauseResponse reports the pause sentinel.
type PauseResponse struct {
	Paused    bool   `json:"paused"`
	PauseFile string `json:"pause_file"`
}

// TransformStateResponse converts a ledger into its API representation.
func TransformStateResponse(name string, state *models.WorkflowState) StateResponse {
	completed := state.CompletedSteps.Sorted()

	return StateResponse{
		Workflow:       name,
		WorkflowPath:   state.WorkflowPath,
		CompletedSteps: completed,
		FailedStep:     state.FailedStep,
		Timestamp:      state.Timestamp,
	}
}
