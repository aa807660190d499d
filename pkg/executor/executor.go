// Package executor runs a single step: it resolves command placeholders,
// writes the command to a bash script and runs it under the tool's strategy.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/toolenv"
)

const (
	scriptHeader  = "#!/bin/bash\nset -e\n"
	stderrTailLen = 2000
)

// Config holds the runner settings.
type Config struct {
	// WorkingDir is the directory commands run in and relative outputs resolve against.
	WorkingDir string
	// ScriptDir holds generated step scripts. Defaults to <tmp>/stepflow_scripts.
	ScriptDir string
	// Tools locates micromamba for isolated tools.
	Tools toolenv.Config
}

// Runner executes steps. It is safe for concurrent use by engine workers.
type Runner struct {
	cfg    Config
	envs   *toolenv.EnvMap
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger, cfg Config, envs *toolenv.EnvMap) *Runner {
	if cfg.ScriptDir == "" {
		cfg.ScriptDir = filepath.Join(os.TempDir(), "stepflow_scripts")
	}

	if envs == nil {
		envs = toolenv.NewEnvMap()
	}

	return &Runner{
		cfg:    cfg,
		envs:   envs,
		logger: logger.With("module", "executor"),
	}
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	StepID string
	Code   int
	Stderr string
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("step '%s' failed with exit code %d", e.StepID, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

// ResolveCommand substitutes the file placeholders of a step's command.
func ResolveCommand(step models.Step) string {
	inputs := strings.Join(step.Inputs(), " ")
	outputs := strings.Join(step.Outputs(), " ")

	return strings.NewReplacer(
		"{inputs}", inputs,
		"{input}", inputs,
		"{outputs}", outputs,
		"{output}", outputs,
	).Replace(step.Command)
}

// Run executes the step and blocks until its process exits.
func (r *Runner) Run(ctx context.Context, step models.Step) error {
	logger := r.logger.With("step_id", step.ID, "tool", step.Tool)

	strategy, err := toolenv.Resolve(step.Tool, r.envs, r.cfg.Tools)
	if err != nil {
		return fmt.Errorf("step '%s': %w", step.ID, err)
	}

	if err := r.createOutputDirs(step); err != nil {
		return err
	}

	command := ResolveCommand(step)

	scriptPath, err := r.writeScript(step.ID, command)
	if err != nil {
		return err
	}

	defer func() {
		if err := os.Remove(scriptPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove step script", "path", scriptPath, "error", err)
		}
	}()

	logger.DebugContext(ctx, "Running step", "strategy", strategy.String(), "command", command)

	var stdout, stderr bytes.Buffer

	cmd := strategy.Command(ctx, scriptPath)
	cmd.Dir = r.cfg.WorkingDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()

	logger.DebugContext(ctx, "Step process exited",
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len())

	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			StepID: step.ID,
			Code:   exitErr.ExitCode(),
			Stderr: tail(strings.TrimSpace(stderr.String()), stderrTailLen),
		}
	}

	return fmt.Errorf("step '%s': failed to start command: %w", step.ID, err)
}

func (r *Runner) createOutputDirs(step models.Step) error {
	for _, out := range step.Outputs() {
		path := out
		if !filepath.IsAbs(path) && r.cfg.WorkingDir != "" {
			path = filepath.Join(r.cfg.WorkingDir, path)
		}

		dir := filepath.Dir(path)
		if dir == "." {
			continue
		}

		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("step '%s': failed to create output directory %s: %w", step.ID, dir, err)
		}
	}

	return nil
}

// writeScript creates a uniquely named script so that steps whose sanitized
// ids collide, or runs sharing a script dir, never overwrite each other.
func (r *Runner) writeScript(stepID, command string) (string, error) {
	if err := os.MkdirAll(r.cfg.ScriptDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create script directory %s: %w", r.cfg.ScriptDir, err)
	}

	file, err := os.CreateTemp(r.cfg.ScriptDir, "step_"+sanitize(stepID)+"_*.sh")
	if err != nil {
		return "", fmt.Errorf("failed to create script for step '%s': %w", stepID, err)
	}

	path := file.Name()

	_, err = file.WriteString(scriptHeader + command + "\n")
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err == nil {
		//nolint:gosec // scripts must be executable
		err = os.Chmod(path, 0o755)
	}

	if err != nil {
		_ = os.Remove(path)

		return "", fmt.Errorf("failed to write script for step '%s': %w", stepID, err)
	}

	return path, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}

		return r
	}, id)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}

	return "..." + s[start:]
}
