package web_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/mocks"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, pauseFile string) (*fiber.App, *file.Store) {
	t.Helper()

	store := file.NewStore(t.TempDir())
	handlers := web.NewAPIHandlers(slog.New(slog.DiscardHandler), store, pauseFile)

	return handlers.App(), store
}

func do(t *testing.T, app *fiber.App, method, target string) (int, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func TestAPIHandlers_State(t *testing.T) {
	app, store := setupTestApp(t, "")

	status, body := do(t, app, http.MethodGet, "/workflows/rnaseq/state")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "state_not_found")

	state := models.NewWorkflowState("pipelines/rnaseq.yaml")
	state.MarkCompleted("trim")
	state.MarkCompleted("align")
	state.MarkFailed("count")
	require.NoError(t, store.Save(t.Context(), state))

	status, body = do(t, app, http.MethodGet, "/workflows/rnaseq/state")
	require.Equal(t, http.StatusOK, status)

	var response web.StateResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, "rnaseq", response.Workflow)
	assert.Equal(t, "pipelines/rnaseq.yaml", response.WorkflowPath)
	assert.Equal(t, []string{"align", "trim"}, response.CompletedSteps)
	require.NotNil(t, response.FailedStep)
	assert.Equal(t, "count", *response.FailedStep)

	status, _ = do(t, app, http.MethodDelete, "/workflows/rnaseq/state")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, app, http.MethodGet, "/workflows/rnaseq/state")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Pause(t *testing.T) {
	pauseFile := filepath.Join(t.TempDir(), "flags", "pause.flag")
	app, _ := setupTestApp(t, pauseFile)

	tests := []struct {
		method   string
		expected bool
	}{
		{http.MethodGet, false},
		{http.MethodPut, true},
		{http.MethodGet, true},
		{http.MethodDelete, false},
		{http.MethodGet, false},
	}

	for _, tt := range tests {
		status, body := do(t, app, tt.method, "/pause")
		require.Equal(t, http.StatusOK, status, tt.method)

		var response web.PauseResponse
		require.NoError(t, json.Unmarshal(body, &response))
		assert.Equal(t, tt.expected, response.Paused, tt.method)
		assert.Equal(t, tt.expected, engine.IsPaused(pauseFile), tt.method)
	}
}

func TestAPIHandlers_PauseNotConfigured(t *testing.T) {
	app, _ := setupTestApp(t, "")

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		status, _ := do(t, app, method, "/pause")
		assert.Equal(t, http.StatusNotFound, status, method)
	}
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t, "")

	status, body := do(t, app, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)

	store := &mocks.MockStateStore{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("database unreachable"))

	app = web.NewAPIHandlers(slog.New(slog.DiscardHandler), store, "").App()

	status, body = do(t, app, http.MethodGet, "/health")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "database unreachable")
}

func TestAPIHandlers_StateStoreFailure(t *testing.T) {
	store := &mocks.MockStateStore{}
	store.On("Load", mock.Anything, "broken").Return(nil, errors.New("decode failed"))

	app := web.NewAPIHandlers(slog.New(slog.DiscardHandler), store, "").App()

	status, body := do(t, app, http.MethodGet, "/workflows/broken/state")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "internal_error")
}
