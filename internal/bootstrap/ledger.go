// Package bootstrap holds startup wiring shared by the service and the one-shot CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"driveprov/internal/config"
	"driveprov/internal/database"
	"driveprov/internal/database/migration"
	"driveprov/internal/repository"
	"driveprov/internal/repository/postgres"
)

var (
	openPostgres   = database.NewPostgres
	ensureMigrated = migration.EnsureMigrated
)

// OpenLedger connects the run ledger and applies its schema. It returns nil values
// without error when no database is configured.
func OpenLedger(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, repository.RunRepository, error) {
	if !cfg.Enabled() {
		logger.Info().Msg("run ledger disabled")
		return nil, nil, nil
	}

	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ledger: %w", err)
	}
	if err := ensureMigrated(ctx, db, logger, cfg.Host); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return db, postgres.NewRunPostgres(db), nil
}
