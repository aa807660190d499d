package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dukex/stepflow/pkg/events"
)

const DefaultPausePollInterval = 500 * time.Millisecond

// IsPaused reports whether the pause sentinel at path exists.
func IsPaused(path string) bool {
	if path == "" {
		return false
	}

	_, err := os.Stat(path)

	return err == nil
}

// Pause creates the sentinel at path, stopping new dispatches of any run
// watching it.
func Pause(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create pause directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, []byte("paused\n"), 0o600); err != nil {
		return fmt.Errorf("failed to create pause file %s: %w", path, err)
	}

	return nil
}

// Resume removes the sentinel at path. A missing sentinel is not an error.
func Resume(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pause file %s: %w", path, err)
	}

	return nil
}

// waitWhilePaused blocks dispatch while the sentinel exists. Results of steps
// that are already running keep being processed, so a failure surfaces while
// paused.
func (r *run) waitWhilePaused(ctx context.Context) error {
	path := r.engine.opts.PauseFile
	if !IsPaused(path) {
		return nil
	}

	pausedAt := time.Now()

	r.logger.InfoContext(ctx, "Execution paused, waiting for resume signal", "pause_file", path)
	r.publish(ctx, events.RunPaused{
		BaseEvent: r.baseEvent(events.RunPausedEvent),
		PauseFile: path,
	})

	ticker := time.NewTicker(r.engine.opts.PausePollInterval)
	defer ticker.Stop()

	for IsPaused(path) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-r.results:
			if err := r.handleResult(ctx, res); err != nil {
				return err
			}
		case <-ticker.C:
		}
	}

	pausedFor := time.Since(pausedAt)

	r.logger.InfoContext(ctx, "Execution resumed", "paused_for", pausedFor)
	r.publish(ctx, events.RunResumed{
		BaseEvent: r.baseEvent(events.RunResumedEvent),
		PausedFor: pausedFor,
	})

	return nil
}
