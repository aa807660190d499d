// Package planner decides which steps may start, subject to dependency
// completion, a parallel job limit and a thread budget.
package planner

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/shirou/gopsutil/v4/cpu"
)

const DefaultMaxParallelJobs = 4

type Options struct {
	// MaxParallelJobs caps how many steps a single ReadySteps call returns.
	MaxParallelJobs int
	// ThreadCeiling is the total thread budget. Zero or less means the
	// number of logical CPUs.
	ThreadCeiling int
}

// Planner tracks step progress for one run. It is not safe for concurrent
// use; the engine's coordinator owns it.
type Planner struct {
	logger          *slog.Logger
	steps           []*models.Step
	index           map[string]*models.Step
	completed       map[string]struct{}
	running         map[string]struct{}
	metrics         map[string]*models.StepMetrics
	maxParallelJobs int
	threadCeiling   int
	threadsInUse    int
}

// New creates a planner over a validated workflow whose steps are in
// topological order.
func New(logger *slog.Logger, wf *models.Workflow, opts Options) *Planner {
	if opts.MaxParallelJobs <= 0 {
		opts.MaxParallelJobs = DefaultMaxParallelJobs
	}

	if opts.ThreadCeiling <= 0 {
		opts.ThreadCeiling = DetectThreadCeiling()
	}

	p := &Planner{
		logger:          logger.With("module", "planner"),
		steps:           wf.Steps,
		index:           make(map[string]*models.Step, len(wf.Steps)),
		completed:       make(map[string]struct{}, len(wf.Steps)),
		running:         make(map[string]struct{}),
		metrics:         make(map[string]*models.StepMetrics, len(wf.Steps)),
		maxParallelJobs: opts.MaxParallelJobs,
		threadCeiling:   opts.ThreadCeiling,
	}

	for _, step := range wf.Steps {
		p.index[step.ID] = step
		p.metrics[step.ID] = &models.StepMetrics{StepID: step.ID, Status: models.StepStatusPending}
	}

	p.logger.Info("Creating planner",
		"max_parallel_jobs", p.maxParallelJobs,
		"thread_ceiling", p.threadCeiling,
		"steps", len(p.steps))

	return p
}

// FromState creates a planner seeded with the completed steps recorded in
// state. Recorded ids that are not part of the workflow are ignored.
func FromState(logger *slog.Logger, wf *models.Workflow, state *models.WorkflowState, opts Options) *Planner {
	p := New(logger, wf, opts)

	if state == nil {
		return p
	}

	for _, id := range state.CompletedSteps.Sorted() {
		if _, ok := p.index[id]; !ok {
			continue
		}

		p.completed[id] = struct{}{}
		p.metrics[id].Status = models.StepStatusSkipped

		p.logger.Info("Skipping previously completed step", "step_id", id)
	}

	return p
}

// DetectThreadCeiling returns the number of logical CPUs.
func DetectThreadCeiling() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}

	return runtime.NumCPU()
}

// ReadySteps returns snapshots of pending steps whose predecessors are all
// done, in topological order. It stops once MaxParallelJobs steps are
// selected and passes over any step that would exceed the thread budget.
func (p *Planner) ReadySteps() []models.Step {
	var ready []models.Step

	allocating := 0

	for _, step := range p.steps {
		if p.metrics[step.ID].Status != models.StepStatusPending {
			continue
		}

		if !p.dependenciesDone(step) {
			continue
		}

		if len(ready) >= p.maxParallelJobs {
			break
		}

		if p.threadsInUse+allocating+step.Threads > p.threadCeiling {
			p.logger.Debug("Step waiting for threads",
				"step_id", step.ID,
				"threads", step.Threads,
				"available", p.threadCeiling-p.threadsInUse-allocating)

			continue
		}

		ready = append(ready, step.Clone())
		allocating += step.Threads
	}

	return ready
}

func (p *Planner) dependenciesDone(step *models.Step) bool {
	for _, dep := range step.Previous {
		if _, ok := p.completed[dep]; !ok {
			return false
		}
	}

	return true
}

// MarkRunning moves a step to running and reserves its threads.
func (p *Planner) MarkRunning(id string) {
	step, ok := p.index[id]
	if !ok {
		p.logger.Warn("Unknown step marked running", "step_id", id)

		return
	}

	p.running[id] = struct{}{}
	p.threadsInUse += step.Threads
	p.metrics[id].Start(time.Now())

	p.logger.Debug("Step started",
		"step_id", id,
		"threads", step.Threads,
		"threads_in_use", p.threadsInUse,
		"thread_ceiling", p.threadCeiling)
}

// MarkCompleted records success and releases the step's threads.
func (p *Planner) MarkCompleted(id string) {
	step, ok := p.index[id]
	if !ok {
		p.logger.Warn("Unknown step marked completed", "step_id", id)

		return
	}

	p.release(id, step)
	p.completed[id] = struct{}{}
	p.metrics[id].Finish(time.Now(), models.StepStatusCompleted, "")

	p.logger.Debug("Step completed", "step_id", id, "threads_in_use", p.threadsInUse)
}

// MarkFailed records failure and releases the step's threads. A failed step
// is never offered again.
func (p *Planner) MarkFailed(id, reason string) {
	step, ok := p.index[id]
	if !ok {
		p.logger.Warn("Unknown step marked failed", "step_id", id)

		return
	}

	p.release(id, step)
	p.metrics[id].Finish(time.Now(), models.StepStatusFailed, reason)
}

func (p *Planner) release(id string, step *models.Step) {
	if _, ok := p.running[id]; !ok {
		return
	}

	delete(p.running, id)

	p.threadsInUse -= step.Threads
	if p.threadsInUse < 0 {
		p.threadsInUse = 0
	}
}

// HasWorkRemaining reports whether fewer steps are done than exist.
func (p *Planner) HasWorkRemaining() bool {
	return len(p.completed) < len(p.steps)
}

// Progress returns done and total step counts.
func (p *Planner) Progress() (int, int) {
	return len(p.completed), len(p.steps)
}

func (p *Planner) Status(id string) models.StepStatus {
	if m, ok := p.metrics[id]; ok {
		return m.Status
	}

	return ""
}

// Metrics returns a copy of the per-step metrics.
func (p *Planner) Metrics() map[string]models.StepMetrics {
	out := make(map[string]models.StepMetrics, len(p.metrics))
	for id, m := range p.metrics {
		out[id] = *m
	}

	return out
}

func (p *Planner) ThreadsInUse() int {
	return p.threadsInUse
}

func (p *Planner) ThreadCeiling() int {
	return p.threadCeiling
}

func (p *Planner) Running() int {
	return len(p.running)
}

// Blocked returns pending steps that request more threads than the ceiling
// and can therefore never start.
func (p *Planner) Blocked() []string {
	var blocked []string

	for _, step := range p.steps {
		if p.metrics[step.ID].Status == models.StepStatusPending && step.Threads > p.threadCeiling {
			blocked = append(blocked, step.ID)
		}
	}

	return blocked
}
