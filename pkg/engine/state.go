package engine

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// loadState returns the persisted ledger, or a fresh one when there is none,
// it cannot be read, or a fresh run was requested.
func (r *run) loadState(ctx context.Context) *models.WorkflowState {
	e := r.engine
	fresh := models.NewWorkflowState(e.opts.WorkflowPath)

	if e.store == nil {
		return fresh
	}

	if e.opts.Fresh {
		r.logger.InfoContext(ctx, "Ignoring previous state, starting fresh")

		return fresh
	}

	state, err := e.store.Load(ctx, e.opts.WorkflowPath)
	if err != nil {
		if persistence.IsStateNotFound(err) {
			r.logger.InfoContext(ctx, "Starting fresh workflow execution")
		} else {
			r.logger.WarnContext(ctx, "Failed to load workflow state, starting fresh", "error", err)
		}

		return fresh
	}

	if state.CompletedSteps == nil {
		state.CompletedSteps = models.StepSet{}
	}

	state.WorkflowPath = e.opts.WorkflowPath

	r.logger.InfoContext(ctx, "Resuming workflow",
		"completed_steps", len(state.CompletedSteps),
		"last_update", state.Timestamp)

	return state
}

// verifyOutputs forgets completed steps whose declared outputs are gone so
// they run again.
func (r *run) verifyOutputs(ctx context.Context) {
	for _, id := range r.state.CompletedSteps.Sorted() {
		step := r.engine.wf.Step(id)
		if step == nil {
			continue
		}

		if !step.OutputsExist(r.engine.opts.WorkingDir) {
			r.logger.InfoContext(ctx, "Step outputs missing, scheduling rerun", "step_id", id)
			r.state.Forget(id)
		}
	}
}

// saveState persists the ledger. Failures are logged and the run continues.
func (r *run) saveState(ctx context.Context) {
	e := r.engine
	if e.store == nil || e.opts.DryRun {
		return
	}

	if err := e.store.Save(ctx, r.state); err != nil {
		r.logger.WarnContext(ctx, "Failed to save workflow state", "error", err)
	}
}
