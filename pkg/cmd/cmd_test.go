package cmd

import (
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStateProvider(t *testing.T) {
	tests := map[string]string{
		"":                             "file",
		".stepflow":                    "file",
		"file:///var/lib/stepflow":     "file",
		"postgres://u:p@db/stepflow":   "postgres",
		"postgresql://u:p@db/stepflow": "postgresql",
		"redis://localhost:6379/0":     "redis",
		"s3://bucket/state":            "file",
	}

	for url, expected := range tests {
		assert.Equal(t, expected, parseStateProvider(url), url)
	}
}

func TestNewStateStore_FileDefault(t *testing.T) {
	store, err := NewStateStore(t.Context(), slog.New(slog.DiscardHandler), t.TempDir())
	require.NoError(t, err)

	_, ok := store.(*file.Store)
	assert.True(t, ok)
}

func TestNewEventBus(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	bus, err := NewEventBus("", "", logger)
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = NewEventBus("memory", "", logger)
	require.NoError(t, err)
	require.NotNil(t, bus)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", logger)
	assert.Error(t, err)

	_, err = NewEventBus("nats", "", logger)
	assert.Error(t, err)
}
