package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/executor"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/otelhelper"
	"github.com/dukex/stepflow/pkg/toolenv"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

var errWorkflowRequired = errors.New("workflow file argument is required")

// runSettings is everything needed to execute a workflow once.
type runSettings struct {
	WorkflowPath string
	WorkingDir   string
	PauseFile    string
	StateURL     string
	EventBus     string
	KafkaBrokers string
	Parallel     int
	Threads      int
	DryRun       bool
	Fresh        bool
	SetupEnvs    bool
	Otel         bool
	Tools        toolenv.Config
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "parallel",
			Aliases: []string{"j"},
			Usage:   "Maximum steps running at once",
			Value:   4,
			Sources: cli.EnvVars("STEPFLOW_PARALLEL"),
		},
		&cli.IntFlag{
			Name:    "threads",
			Usage:   "Thread budget shared by running steps (0 = logical CPUs)",
			Value:   0,
			Sources: cli.EnvVars("STEPFLOW_THREADS"),
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Print steps in execution order without running them",
		},
		&cli.StringFlag{
			Name:    "working-dir",
			Aliases: []string{"C"},
			Usage:   "Directory commands run in and relative files resolve against",
			Sources: cli.EnvVars("STEPFLOW_WORKING_DIR"),
		},
		&cli.StringFlag{
			Name:    "pause-file",
			Usage:   "While this file exists no new steps are started",
			Sources: cli.EnvVars("STEPFLOW_PAUSE_FILE"),
		},
		&cli.BoolFlag{
			Name:  "fresh",
			Usage: "Ignore previously completed steps",
		},
		&cli.BoolFlag{
			Name:    "setup-envs",
			Usage:   "Create missing micromamba environments before running",
			Value:   true,
			Sources: cli.EnvVars("STEPFLOW_SETUP_ENVS"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export step spans over OTLP/HTTP (configured with OTEL_EXPORTER_OTLP_* variables)",
			Sources: cli.EnvVars("STEPFLOW_OTEL"),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a workflow",
		ArgsUsage: "<workflow-file> [pause-file]",
		Flags:     runFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			settings, err := runSettingsFromCommand(command)
			if err != nil {
				return err
			}

			logger := log.FromContext(ctx)

			report, err := executeWorkflow(ctx, logger, settings)
			printReport(command.Root().Writer, report, err)

			return err
		},
	}
}

func toolConfigFromCommand(command *cli.Command) toolenv.Config {
	return toolenv.Config{
		EnvMapPath:     command.String("env-map"),
		MicromambaPath: command.String("micromamba"),
		RootPrefix:     command.String("mamba-root-prefix"),
	}
}

func runSettingsFromCommand(command *cli.Command) (runSettings, error) {
	settings := runSettings{
		WorkflowPath: command.Args().Get(0),
		WorkingDir:   command.String("working-dir"),
		PauseFile:    command.String("pause-file"),
		StateURL:     command.String("state-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Parallel:     command.Int("parallel"),
		Threads:      command.Int("threads"),
		DryRun:       command.Bool("dry-run"),
		Fresh:        command.Bool("fresh"),
		SetupEnvs:    command.Bool("setup-envs"),
		Otel:         command.Bool("otel"),
		Tools:        toolConfigFromCommand(command),
	}

	if settings.WorkflowPath == "" {
		return settings, errWorkflowRequired
	}

	if settings.PauseFile == "" {
		settings.PauseFile = command.Args().Get(1)
	}

	if command.Args().Len() > 2 {
		return settings, fmt.Errorf("unexpected argument: %s", command.Args().Get(2))
	}

	if settings.Parallel < 1 {
		return settings, fmt.Errorf("--parallel must be at least 1, got %d", settings.Parallel)
	}

	if err := checkWorkingDir(settings.WorkingDir); err != nil {
		return settings, err
	}

	if settings.StateURL == "" {
		settings.StateURL = filepath.Join(settings.WorkingDir, ".stepflow")
	}

	return settings, nil
}

func checkWorkingDir(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory does not exist: %s", dir)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	return nil
}

// executeWorkflow loads, prepares and runs a workflow once.
func executeWorkflow(ctx context.Context, logger *slog.Logger, settings runSettings) (*engine.Report, error) {
	logger.InfoContext(ctx, "Loading workflow", "path", settings.WorkflowPath)

	wf, err := workflow.Load(ctx, logger, settings.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("could not load workflow from '%s': %w", settings.WorkflowPath, err)
	}

	logger.InfoContext(ctx, "Workflow loaded", "steps", len(wf.Steps), "tools", len(wf.Tools))

	if settings.PauseFile != "" {
		logger.InfoContext(ctx, "Pause control enabled", "pause_file", settings.PauseFile)
	}

	toolCfg := toolenv.ResolveConfig(logger, settings.Tools)

	envs, err := toolenv.LoadEnvMap(toolCfg.EnvMapPath)
	if err != nil {
		logger.WarnContext(ctx, "Failed to load environment map, using system tools only", "error", err)
	}

	if settings.SetupEnvs && !settings.DryRun {
		if err := toolenv.NewProvisioner(logger, toolCfg).Ensure(ctx, wf.Tools, envs); err != nil {
			return nil, err
		}
	}

	store, err := cmd.NewStateStore(ctx, logger, settings.StateURL)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close state store", "error", err)
		}
	}()

	runner := executor.NewRunner(logger, executor.Config{WorkingDir: settings.WorkingDir, Tools: toolCfg}, envs)

	eng := engine.New(logger, wf, runner, store, engine.Options{
		WorkflowPath:  settings.WorkflowPath,
		MaxParallel:   settings.Parallel,
		ThreadCeiling: settings.Threads,
		DryRun:        settings.DryRun,
		PauseFile:     settings.PauseFile,
		WorkingDir:    settings.WorkingDir,
		Fresh:         settings.Fresh,
	})

	bus, err := cmd.NewEventBus(settings.EventBus, settings.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		eng.WithPublisher(bus)
	}

	if settings.Otel {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "stepflow")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			if err := shutdown(shutdownCtx); err != nil {
				logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
			}
		}()

		eng.WithTracer(tracer)
	}

	return eng.Run(ctx)
}

func printReport(out io.Writer, report *engine.Report, runErr error) {
	if report == nil {
		return
	}

	if report.Timeline != nil && len(report.Timeline.Events()) > 0 {
		fmt.Fprint(out, report.Timeline.Gantt(0))
	}

	fmt.Fprintln(out)

	if runErr != nil {
		fmt.Fprintln(out, failureColor.Sprint("Workflow failed"))
	} else {
		fmt.Fprintln(out, successColor.Sprint("Workflow completed successfully"))
	}

	fmt.Fprintf(out, "Executed: %d  Skipped: %d\n", report.Executed, report.Skipped)
	fmt.Fprintf(out, "Total execution time: %s\n", report.Duration.Round(time.Millisecond))

	if report.Resources.Samples > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, report.Resources.String())
	}

	for _, id := range failedSteps(report.Metrics) {
		fmt.Fprintf(out, "%s %s: %s\n", failureColor.Sprint("FAILED"), id, report.Metrics[id].Error)
	}
}

func failedSteps(metrics map[string]models.StepMetrics) []string {
	var failed []string

	for id, m := range metrics {
		if m.Status == models.StepStatusFailed {
			failed = append(failed, id)
		}
	}

	slices.Sort(failed)

	return failed
}
