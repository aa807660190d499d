package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// Load reads a workflow definition, choosing the format by file extension,
// and prepares it for execution.
func Load(ctx context.Context, logger *slog.Logger, path string) (*models.Workflow, error) {
	wf, err := Parse(path)
	if err != nil {
		return nil, err
	}

	if err := Prepare(ctx, logger, wf); err != nil {
		return nil, err
	}

	return wf, nil
}

// Parse reads a workflow file without expanding or validating it.
func Parse(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var wf *models.Workflow

	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		wf, err = ParseHCL(data, path)
	} else {
		wf, err = ParseYAML(data)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	wf.Path = path

	return wf, nil
}

// ParseYAML decodes a YAML workflow document after checking it against the schema.
func ParseYAML(data []byte) (*models.Workflow, error) {
	var document map[string]any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, err
	}

	if err := ValidateSchema(document); err != nil {
		return nil, err
	}

	var wf models.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, err
	}

	return &wf, nil
}

// Prepare expands wildcards, populates dependencies and validates the
// workflow, leaving the steps in topological order.
func Prepare(ctx context.Context, logger *slog.Logger, wf *models.Workflow) error {
	logger = logger.With("module", "workflow_loader")

	for _, step := range wf.Steps {
		step.Normalize()
	}

	if err := ExpandWildcards(logger, wf); err != nil {
		return err
	}

	mode, err := PopulateDependencies(logger, wf)
	if err != nil {
		return err
	}

	if err := NewValidator(logger).Validate(wf); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Workflow prepared",
		"path", wf.Path,
		"steps", len(wf.Steps),
		"tools", wf.Tools,
		"mode", mode)

	return nil
}

// Save writes the workflow as YAML, for example after wildcard expansion.
func Save(wf *models.Workflow, path string) error {
	data, err := yaml.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write workflow file %s: %w", path, err)
	}

	return nil
}
