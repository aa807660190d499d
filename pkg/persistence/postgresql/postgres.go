// Package postgresql provides the PostgreSQL run state store.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Store implements persistence.StateStore on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to the database and runs the schema migrations.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) Load(ctx context.Context, workflowPath string) (*models.WorkflowState, error) {
	key := persistence.StateKey(workflowPath)

	query := `
		SELECT workflow_path, completed_steps, failed_step, updated_at
		FROM workflow_states
		WHERE workflow_key = $1`

	var (
		state     models.WorkflowState
		completed []byte
		failed    sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, key).Scan(&state.WorkflowPath, &completed, &failed, &state.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStateError("Load", key, persistence.ErrStateNotFound)
		}

		return nil, persistence.NewStateError("Load", key, err)
	}

	if err := json.Unmarshal(completed, &state.CompletedSteps); err != nil {
		return nil, persistence.NewStateError("Load", key, fmt.Errorf("%w: %w", persistence.ErrInvalidState, err))
	}

	if failed.Valid {
		state.FailedStep = &failed.String
	}

	return &state, nil
}

func (s *Store) Save(ctx context.Context, state *models.WorkflowState) error {
	key := persistence.StateKey(state.WorkflowPath)

	completed, err := json.Marshal(state.CompletedSteps)
	if err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	query := `
		INSERT INTO workflow_states (workflow_key, workflow_path, completed_steps, failed_step, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workflow_key) DO UPDATE SET
			workflow_path = EXCLUDED.workflow_path,
			completed_steps = EXCLUDED.completed_steps,
			failed_step = EXCLUDED.failed_step,
			updated_at = EXCLUDED.updated_at`

	var failed sql.NullString
	if state.FailedStep != nil {
		failed = sql.NullString{String: *state.FailedStep, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query, key, state.WorkflowPath, string(completed), failed, state.Timestamp)
	if err != nil {
		return persistence.NewStateError("Save", key, err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, workflowPath string) error {
	key := persistence.StateKey(workflowPath)

	_, err := s.db.ExecContext(ctx, "DELETE FROM workflow_states WHERE workflow_key = $1", key)
	if err != nil {
		return persistence.NewStateError("Delete", key, err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
