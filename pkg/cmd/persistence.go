package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/persistence/file"
	"github.com/dukex/stepflow/pkg/persistence/postgresql"
	"github.com/dukex/stepflow/pkg/persistence/redis"
)

var supportedStateProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewStateStore selects a state store from the URL scheme. Anything without
// a supported scheme is treated as a directory for the file store.
func NewStateStore(ctx context.Context, logger *slog.Logger, stateURL string) (persistence.StateStore, error) {
	provider := parseStateProvider(stateURL)
	logger = logger.With("module", "state_store", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, stateURL)
	case "redis", "rediss":
		return redis.NewStore(ctx, logger, stateURL)
	default:
		return file.NewStore(stateURL), nil
	}
}

func parseStateProvider(stateURL string) string {
	provider, _, found := strings.Cut(stateURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedStateProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
