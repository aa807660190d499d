package mocks

import (
	"context"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockStateStore is a mock implementation of persistence.StateStore interface.
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Load(ctx context.Context, workflowPath string) (*models.WorkflowState, error) {
	args := m.Called(ctx, workflowPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowState), args.Error(1)
}

func (m *MockStateStore) Save(ctx context.Context, state *models.WorkflowState) error {
	args := m.Called(ctx, state)

	return args.Error(0)
}

func (m *MockStateStore) Delete(ctx context.Context, workflowPath string) error {
	args := m.Called(ctx, workflowPath)

	return args.Error(0)
}

func (m *MockStateStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStateStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
