// Package persistence provides the storage abstraction for run state ledgers.
package persistence

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dukex/stepflow/pkg/models"
)

// StateStore loads and saves the run ledger of a workflow, keyed by the
// workflow file's stem.
type StateStore interface {
	// Load returns ErrStateNotFound when no ledger exists.
	Load(ctx context.Context, workflowPath string) (*models.WorkflowState, error)
	Save(ctx context.Context, state *models.WorkflowState) error
	Delete(ctx context.Context, workflowPath string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// StateKey returns the storage key for a workflow path: the file name without
// its extension.
func StateKey(workflowPath string) string {
	base := filepath.Base(workflowPath)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
