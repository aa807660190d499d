// Package file provides the file-based run state store.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// DefaultRoot is the directory, relative to the working directory, that
// holds state files when no root is configured.
const DefaultRoot = ".stepflow"

// Store keeps one JSON ledger per workflow at <root>/<stem>.state.
type Store struct {
	root string
}

// NewStore creates a file state store rooted at root. A file:// prefix is accepted.
func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	if cleanRoot == "" {
		cleanRoot = DefaultRoot
	}

	return &Store{root: cleanRoot}
}

// Path returns the ledger file for a workflow.
func (s *Store) Path(workflowPath string) string {
	return filepath.Join(s.root, persistence.StateKey(workflowPath)+".state")
}

func (s *Store) Load(_ context.Context, workflowPath string) (*models.WorkflowState, error) {
	key := persistence.StateKey(workflowPath)

	data, err := os.ReadFile(s.Path(workflowPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStateError("Load", key, persistence.ErrStateNotFound)
		}

		return nil, persistence.NewStateError("Load", key, err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewStateError("Load", key, fmt.Errorf("%w: %w", persistence.ErrInvalidState, err))
	}

	if state.CompletedSteps == nil {
		state.CompletedSteps = models.StepSet{}
	}

	return &state, nil
}

// Save writes the ledger through a temporary file and a rename, so a crash
// mid-write never leaves a truncated ledger behind.
func (s *Store) Save(_ context.Context, state *models.WorkflowState) error {
	key := persistence.StateKey(state.WorkflowPath)

	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return persistence.NewStateError("Save", key, fmt.Errorf("failed to create state directory: %w", err))
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	tmp, err := os.CreateTemp(s.root, key+".*.tmp")
	if err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return persistence.NewStateError("Save", key, err)
	}

	if err := tmp.Close(); err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	if err := os.Rename(tmp.Name(), s.Path(state.WorkflowPath)); err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, workflowPath string) error {
	err := os.Remove(s.Path(workflowPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.NewStateError("Delete", persistence.StateKey(workflowPath), err)
	}

	return nil
}

// HealthCheck verifies the root directory can be created.
func (s *Store) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("state directory %s is not usable: %w", s.root, err)
	}

	return nil
}

// Close performs any necessary cleanup. For file-based state there is nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}
