package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cascadehq/cascade/pkg/persistence"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// The in-memory backend exists for local development and tests only.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		return store, nil
	case databaseURL == "memory", databaseURL == "":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url: %s", databaseURL)
	}
}
