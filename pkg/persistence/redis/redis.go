// Package redis provides the Redis run state store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stepflow:state:"

// Store implements persistence.StateStore on Redis, one JSON value per workflow.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewStore connects using a redis:// or rediss:// URL.
func NewStore(ctx context.Context, logger *slog.Logger, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	store := NewStoreWithClient(logger, redis.NewClient(opts))

	if err := store.HealthCheck(ctx); err != nil {
		_ = store.client.Close()

		return nil, err
	}

	return store, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(logger *slog.Logger, client redis.UniversalClient) *Store {
	return &Store{client: client, logger: logger}
}

func key(workflowPath string) string {
	return keyPrefix + persistence.StateKey(workflowPath)
}

func (s *Store) Load(ctx context.Context, workflowPath string) (*models.WorkflowState, error) {
	stateKey := persistence.StateKey(workflowPath)

	data, err := s.client.Get(ctx, key(workflowPath)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewStateError("Load", stateKey, persistence.ErrStateNotFound)
		}

		return nil, persistence.NewStateError("Load", stateKey, err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, persistence.NewStateError("Load", stateKey, fmt.Errorf("%w: %w", persistence.ErrInvalidState, err))
	}

	if state.CompletedSteps == nil {
		state.CompletedSteps = models.StepSet{}
	}

	return &state, nil
}

func (s *Store) Save(ctx context.Context, state *models.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return persistence.NewStateError("Save", persistence.StateKey(state.WorkflowPath), err)
	}

	if err := s.client.Set(ctx, key(state.WorkflowPath), data, 0).Err(); err != nil {
		return persistence.NewStateError("Save", persistence.StateKey(state.WorkflowPath), err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, workflowPath string) error {
	if err := s.client.Del(ctx, key(workflowPath)).Err(); err != nil {
		return persistence.NewStateError("Delete", persistence.StateKey(workflowPath), err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
