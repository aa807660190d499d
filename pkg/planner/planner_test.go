package planner

import (
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func ids(steps []models.Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ID)
	}

	return out
}

// diamond: a -> {b, c} -> d
func diamond(threads map[string]int) *models.Workflow {
	th := func(id string) int {
		if n, ok := threads[id]; ok {
			return n
		}

		return 1
	}

	return &models.Workflow{Steps: []*models.Step{
		{ID: "a", Threads: th("a"), Next: []string{"b", "c"}},
		{ID: "b", Threads: th("b"), Previous: []string{"a"}, Next: []string{"d"}},
		{ID: "c", Threads: th("c"), Previous: []string{"a"}, Next: []string{"d"}},
		{ID: "d", Threads: th("d"), Previous: []string{"b", "c"}},
	}}
}

func TestPlanner_DiamondProgression(t *testing.T) {
	p := New(testLogger(), diamond(nil), Options{MaxParallelJobs: 4, ThreadCeiling: 8})

	assert.Equal(t, []string{"a"}, ids(p.ReadySteps()))

	p.MarkRunning("a")
	assert.Empty(t, p.ReadySteps())
	assert.Equal(t, 1, p.ThreadsInUse())

	p.MarkCompleted("a")
	assert.Equal(t, []string{"b", "c"}, ids(p.ReadySteps()))

	p.MarkRunning("b")
	p.MarkRunning("c")
	p.MarkCompleted("b")
	assert.Empty(t, p.ReadySteps(), "d must wait for c")

	p.MarkCompleted("c")
	assert.Equal(t, []string{"d"}, ids(p.ReadySteps()))

	p.MarkRunning("d")
	p.MarkCompleted("d")

	assert.False(t, p.HasWorkRemaining())
	done, total := p.Progress()
	assert.Equal(t, 4, done)
	assert.Equal(t, 4, total)
	assert.Equal(t, 0, p.ThreadsInUse())
}

func TestPlanner_MaxParallelJobsStopsSelection(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{ID: "a", Threads: 1}, {ID: "b", Threads: 1}, {ID: "c", Threads: 1},
	}}

	p := New(testLogger(), wf, Options{MaxParallelJobs: 2, ThreadCeiling: 16})
	assert.Equal(t, []string{"a", "b"}, ids(p.ReadySteps()))
}

func TestPlanner_ThreadBudgetSkipsOversizedStep(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{
		{ID: "big", Threads: 3},
		{ID: "huge", Threads: 4},
		{ID: "small", Threads: 1},
	}}

	p := New(testLogger(), wf, Options{MaxParallelJobs: 4, ThreadCeiling: 4})

	assert.Equal(t, []string{"big", "small"}, ids(p.ReadySteps()))

	p.MarkRunning("big")
	p.MarkRunning("small")
	assert.Empty(t, p.ReadySteps(), "huge does not fit next to running steps")

	p.MarkCompleted("big")
	p.MarkCompleted("small")
	assert.Equal(t, []string{"huge"}, ids(p.ReadySteps()))
}

func TestPlanner_ReadyStepsAreSnapshots(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{{ID: "a", Threads: 1, Input: models.StringList{"x"}}}}
	p := New(testLogger(), wf, Options{ThreadCeiling: 2})

	ready := p.ReadySteps()
	require.Len(t, ready, 1)
	ready[0].Input[0] = "mutated"

	assert.Equal(t, "x", wf.Steps[0].Input[0])
}

func TestPlanner_FailedStepReleasesThreadsAndIsNotOfferedAgain(t *testing.T) {
	p := New(testLogger(), diamond(map[string]int{"a": 2}), Options{ThreadCeiling: 4})

	p.MarkRunning("a")
	assert.Equal(t, 2, p.ThreadsInUse())

	p.MarkFailed("a", "exit status 1")
	assert.Equal(t, 0, p.ThreadsInUse())
	assert.Empty(t, p.ReadySteps())
	assert.True(t, p.HasWorkRemaining())

	metrics := p.Metrics()["a"]
	assert.Equal(t, models.StepStatusFailed, metrics.Status)
	assert.Equal(t, "exit status 1", metrics.Error)
	assert.NotNil(t, metrics.EndTime)
}

func TestPlanner_ReleaseNeverGoesNegative(t *testing.T) {
	p := New(testLogger(), diamond(nil), Options{ThreadCeiling: 4})

	p.MarkCompleted("a")
	p.MarkFailed("b", "boom")
	assert.Equal(t, 0, p.ThreadsInUse())
}

func TestPlanner_FromStateSkipsCompleted(t *testing.T) {
	state := models.NewWorkflowState("wf.yaml")
	state.MarkCompleted("a")
	state.MarkCompleted("b")
	state.MarkCompleted("removed-step")

	p := FromState(testLogger(), diamond(nil), state, Options{ThreadCeiling: 4})

	assert.Equal(t, models.StepStatusSkipped, p.Status("a"))
	assert.Equal(t, models.StepStatusSkipped, p.Status("b"))
	assert.Equal(t, []string{"c"}, ids(p.ReadySteps()))

	done, total := p.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 4, total)
}

func TestPlanner_Blocked(t *testing.T) {
	wf := &models.Workflow{Steps: []*models.Step{{ID: "fits", Threads: 2}, {ID: "never", Threads: 9}}}
	p := New(testLogger(), wf, Options{ThreadCeiling: 8})

	assert.Equal(t, []string{"never"}, p.Blocked())
}

func TestPlanner_Defaults(t *testing.T) {
	p := New(testLogger(), &models.Workflow{}, Options{})

	assert.Equal(t, DefaultMaxParallelJobs, p.maxParallelJobs)
	assert.Positive(t, p.ThreadCeiling())
	assert.False(t, p.HasWorkRemaining())
}
