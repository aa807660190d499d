package redis_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	stateredis "github.com/dukex/stepflow/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupStore(t *testing.T) (*stateredis.Store, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := stateredis.NewStore(ctx, logger, url)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(ctx)
		_ = testcontainers.TerminateContainer(container)

		cancel()
	})

	return store, ctx
}

func TestStore_RoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	_, err := store.Load(ctx, "wf.yaml")
	assert.True(t, persistence.IsStateNotFound(err))

	state := models.NewWorkflowState("dir/wf.yaml")
	state.MarkCompleted("a")
	state.MarkFailed("b")
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "wf.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, loaded.CompletedSteps.Sorted())
	require.NotNil(t, loaded.FailedStep)
	assert.Equal(t, "b", *loaded.FailedStep)

	require.NoError(t, store.Delete(ctx, "wf.yaml"))

	_, err = store.Load(ctx, "wf.yaml")
	assert.True(t, persistence.IsStateNotFound(err))
}

func TestNewStore_InvalidURL(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	_, err := stateredis.NewStore(t.Context(), logger, "not-a-url://")
	assert.Error(t, err)
}
