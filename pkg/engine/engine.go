// Package engine runs a prepared workflow: it dispatches ready steps to
// concurrent workers, records progress in a persisted ledger so interrupted
// runs resume where they stopped, and stops at the first failing step.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/monitoring"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/planner"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepRunner executes one step and blocks until it finishes.
type StepRunner interface {
	Run(ctx context.Context, step models.Step) error
}

type Options struct {
	// WorkflowPath identifies the workflow in the state store and in events.
	WorkflowPath string
	// MaxParallel caps concurrently running steps. Defaults to 4.
	MaxParallel int
	// ThreadCeiling caps the summed threads of running steps. Zero or less
	// means the number of logical CPUs.
	ThreadCeiling int
	// DryRun logs each step in dispatch order and marks it completed without
	// running it. Nothing is persisted.
	DryRun bool
	// PauseFile, when set, blocks new dispatches while the file exists.
	PauseFile         string
	PausePollInterval time.Duration
	// WorkingDir is where outputs are checked when resuming.
	WorkingDir string
	// Fresh ignores any persisted ledger.
	Fresh bool
	// SampleInterval is the resource sampling period. Defaults to 500ms.
	SampleInterval time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Executed  int
	Skipped   int
	Duration  time.Duration
	Metrics   map[string]models.StepMetrics
	Timeline  *monitoring.Timeline
	Resources monitoring.ResourceSummary
}

type Engine struct {
	wf        *models.Workflow
	opts      Options
	runner    StepRunner
	store     persistence.StateStore
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	base      *slog.Logger
	logger    *slog.Logger
}

// New creates an engine for a workflow that already went through
// workflow.Prepare. store may be nil to keep the ledger in memory only.
func New(logger *slog.Logger, wf *models.Workflow, runner StepRunner, store persistence.StateStore, opts Options) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = planner.DefaultMaxParallelJobs
	}

	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = DefaultPausePollInterval
	}

	if opts.WorkflowPath == "" {
		opts.WorkflowPath = wf.Path
	}

	return &Engine{
		wf:     wf,
		opts:   opts,
		runner: runner,
		store:  store,
		tracer: otelhelper.NoopTracer(),
		base:   logger,
		logger: logger.With("module", "engine"),
	}
}

// WithPublisher sends lifecycle events to publisher.
func (e *Engine) WithPublisher(publisher eventbus.EventPublisher) *Engine {
	e.publisher = publisher

	return e
}

// WithTracer records a span per step execution.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	if tracer != nil {
		e.tracer = tracer
	}

	return e
}

type result struct {
	stepID   string
	err      error
	duration time.Duration
}

// run holds the coordinator state of one Run call. Only the coordinator
// goroutine touches it; workers communicate through results.
type run struct {
	engine   *Engine
	id       string
	logger   *slog.Logger
	started  time.Time
	planner  *planner.Planner
	state    *models.WorkflowState
	timeline *monitoring.Timeline
	results  chan result
	running  int
	executed int
	skipped  int
}

// Run executes the workflow until every step is done, a step fails, or ctx is
// cancelled. Cancellation stops dispatching; steps already running are left
// to finish. The report is returned on failure too.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	r := &run{
		engine:   e,
		id:       uuid.New().String(),
		started:  time.Now(),
		timeline: monitoring.NewTimeline(),
		results:  make(chan result, len(e.wf.Steps)),
	}
	r.logger = e.logger.With("run_id", r.id, "workflow", e.opts.WorkflowPath)

	r.state = r.loadState(ctx)
	r.verifyOutputs(ctx)

	r.planner = planner.FromState(e.base, e.wf, r.state, planner.Options{
		MaxParallelJobs: e.opts.MaxParallel,
		ThreadCeiling:   e.opts.ThreadCeiling,
	})

	monitor := monitoring.NewResourceMonitor(e.base, e.opts.SampleInterval)
	if !e.opts.DryRun {
		monitor.Start(ctx)
	}

	r.announce(ctx)

	err := r.loop(ctx)

	monitor.Stop()

	report := &Report{
		RunID:     r.id,
		Executed:  r.executed,
		Skipped:   r.skipped,
		Duration:  time.Since(r.started),
		Metrics:   r.planner.Metrics(),
		Timeline:  r.timeline,
		Resources: monitor.Summary(),
	}

	if err != nil {
		r.fail(ctx, err, report.Duration)

		return report, err
	}

	r.logger.InfoContext(ctx, "Workflow completed successfully",
		"executed", report.Executed,
		"skipped", report.Skipped,
		"duration", report.Duration)
	r.publish(ctx, events.RunCompleted{
		BaseEvent: r.baseEvent(events.RunCompletedEvent),
		Executed:  report.Executed,
		Skipped:   report.Skipped,
		Duration:  report.Duration,
	})

	return report, nil
}

func (r *run) loop(ctx context.Context) error {
	for {
		if err := r.dispatch(ctx); err != nil {
			return err
		}

		if r.running == 0 {
			if !r.planner.HasWorkRemaining() {
				return nil
			}

			return r.unschedulable()
		}

		select {
		case <-ctx.Done():
			r.logger.WarnContext(ctx, "Run cancelled, leaving running steps to finish", "running", r.running)

			return ctx.Err()
		case res := <-r.results:
			if err := r.handleResult(ctx, res); err != nil {
				return err
			}
		}
	}
}

// dispatch starts ready steps until capacity is reached or nothing is ready.
func (r *run) dispatch(ctx context.Context) error {
	maxParallel := r.engine.opts.MaxParallel

	for r.running < maxParallel {
		ready := r.planner.ReadySteps()
		if len(ready) == 0 {
			return nil
		}

		for _, step := range ready {
			if r.running >= maxParallel {
				break
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			if err := r.waitWhilePaused(ctx); err != nil {
				return err
			}

			if r.engine.opts.DryRun {
				r.dryRun(ctx, step)

				continue
			}

			r.start(ctx, step)
		}
	}

	return nil
}

func (r *run) dryRun(ctx context.Context, step models.Step) {
	r.logger.InfoContext(ctx, "[DRY RUN] Step",
		"step_id", step.ID,
		"tool", step.Tool,
		"command", step.Command,
		"input", step.Inputs(),
		"output", step.Outputs(),
		"threads", step.Threads)

	r.timeline.Started(step.ID)
	r.planner.MarkRunning(step.ID)
	r.planner.MarkCompleted(step.ID)
	r.timeline.Completed(step.ID)
	r.executed++
}

func (r *run) start(ctx context.Context, step models.Step) {
	r.logger.InfoContext(ctx, "Starting step", "step_id", step.ID, "tool", step.Tool, "threads", step.Threads)

	r.timeline.Started(step.ID)
	r.planner.MarkRunning(step.ID)
	r.running++

	r.publish(ctx, events.StepStarted{
		BaseEvent: r.baseEvent(events.StepStartedEvent),
		StepID:    step.ID,
		Tool:      step.Tool,
		Threads:   step.Threads,
	})

	// Workers outlive a cancelled run; only dispatching stops.
	workerCtx := context.WithoutCancel(ctx)
	runner := r.engine.runner
	tracer := r.engine.tracer
	results := r.results
	runID := r.id

	go func() {
		spanCtx, span := otelhelper.StartSpan(workerCtx, tracer, "step.run",
			attribute.String(otelhelper.RunIDKey, runID),
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.ToolKey, step.Tool),
			attribute.Int(otelhelper.ThreadsKey, step.Threads),
		)
		defer span.End()

		began := time.Now()
		err := runner.Run(spanCtx, step)
		elapsed := time.Since(began)

		if err != nil {
			otelhelper.FailStep(span, step.ID, elapsed, err)
		}

		results <- result{stepID: step.ID, err: err, duration: elapsed}
	}()
}

func (r *run) handleResult(ctx context.Context, res result) error {
	r.running--

	if res.err != nil {
		r.logger.ErrorContext(ctx, "Step failed", "step_id", res.stepID, "error", res.err)

		r.planner.MarkFailed(res.stepID, res.err.Error())
		r.timeline.Failed(res.stepID)
		r.state.MarkFailed(res.stepID)
		r.saveState(ctx)

		r.publish(ctx, events.StepFailed{
			BaseEvent: r.baseEvent(events.StepFailedEvent),
			StepID:    res.stepID,
			Error:     res.err.Error(),
			Duration:  res.duration,
		})

		if r.running > 0 {
			r.logger.WarnContext(ctx, "Stopping dispatch, steps still running will not be awaited", "running", r.running)
		}

		return &StepExecutionError{StepID: res.stepID, Message: res.err.Error(), Err: res.err}
	}

	done, total := r.planner.Progress()

	r.planner.MarkCompleted(res.stepID)
	r.timeline.Completed(res.stepID)
	r.state.MarkCompleted(res.stepID)
	r.saveState(ctx)
	r.executed++

	r.logger.InfoContext(ctx, "Step completed successfully",
		"step_id", res.stepID,
		"duration", res.duration,
		"progress", done+1,
		"total", total)

	r.publish(ctx, events.StepCompleted{
		BaseEvent: r.baseEvent(events.StepCompletedEvent),
		StepID:    res.stepID,
		Duration:  res.duration,
	})

	return nil
}

func (r *run) unschedulable() error {
	blocked := r.planner.Blocked()
	if len(blocked) == 0 {
		for _, id := range r.engine.wf.StepIDs() {
			if r.planner.Status(id) == models.StepStatusPending {
				blocked = append(blocked, id)
			}
		}
	}

	return &UnschedulableError{Steps: blocked, ThreadCeiling: r.planner.ThreadCeiling()}
}

func (r *run) fail(ctx context.Context, err error, duration time.Duration) {
	failed := events.RunFailed{
		BaseEvent: r.baseEvent(events.RunFailedEvent),
		Error:     err.Error(),
		Duration:  duration,
	}

	var stepErr *StepExecutionError
	if errors.As(err, &stepErr) {
		failed.StepID = stepErr.StepID
	}

	r.logger.ErrorContext(ctx, "Workflow failed", "error", err, "duration", duration)
	r.publish(ctx, failed)
}

// announce logs the run configuration and reports steps skipped from a
// previous run.
func (r *run) announce(ctx context.Context) {
	opts := r.engine.opts
	resumed := r.state.IsResume()

	for _, id := range r.engine.wf.StepIDs() {
		if r.planner.Status(id) != models.StepStatusSkipped {
			continue
		}

		r.skipped++
		r.publish(ctx, events.StepSkipped{
			BaseEvent: r.baseEvent(events.StepSkippedEvent),
			StepID:    id,
			Reason:    "completed in a previous run",
		})
	}

	r.logger.InfoContext(ctx, "Starting execution",
		"max_parallel", opts.MaxParallel,
		"thread_ceiling", r.planner.ThreadCeiling(),
		"dry_run", opts.DryRun,
		"resumed", resumed,
		"skipped", r.skipped)

	r.publish(ctx, events.RunStarted{
		BaseEvent:  r.baseEvent(events.RunStartedEvent),
		TotalSteps: len(r.engine.wf.Steps),
		Skipped:    r.skipped,
		Resumed:    resumed,
		DryRun:     opts.DryRun,
	})
}

func (r *run) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.NewBaseEvent(eventType, r.id, r.engine.opts.WorkflowPath)
}

func (r *run) publish(ctx context.Context, event eventbus.Event) {
	if r.engine.publisher == nil {
		return
	}

	if err := r.engine.publisher.Publish(ctx, r.id, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
