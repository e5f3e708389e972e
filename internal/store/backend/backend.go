// Package backend opens the store.Store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/httpstore"
	"github.com/cryptoshelf/shelfsync/internal/store/postgres"
	"github.com/cryptoshelf/shelfsync/internal/store/sqlite"
)

// Open connects to the configured remote.
func Open(ctx context.Context, cfg config.RemoteConfig, logger *slog.Logger) (store.Store, error) {
	logger = logger.With("remote", cfg.Kind)

	switch cfg.Kind {
	case config.RemoteSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil

	case config.RemotePostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxConns: cfg.MaxConns}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil

	case config.RemoteHTTP:
		c, err := httpstore.New(cfg.BaseURL, httpstore.WithTimeout(cfg.Timeout), httpstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open http store: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown remote kind %q", cfg.Kind)
	}
}
