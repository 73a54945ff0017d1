package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_provision_runs",
		SQL: `CREATE TABLE IF NOT EXISTS provision_runs (
  id           UUID        PRIMARY KEY,
  status       TEXT        NOT NULL CHECK (status IN ('succeeded', 'failed')),
  folder_id    TEXT        NOT NULL DEFAULT '',
  template_id  TEXT        NOT NULL DEFAULT '',
  template_url TEXT        NOT NULL DEFAULT '',
  error        TEXT        NOT NULL DEFAULT '',
  started_at   TIMESTAMPTZ NOT NULL,
  finished_at  TIMESTAMPTZ NOT NULL
);`,
	},
	{
		Name: "create_index_provision_runs_started_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_provision_runs_started_at ON provision_runs (started_at);`,
	},
	{
		Name: "create_index_provision_runs_template_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_provision_runs_template_id ON provision_runs (template_id);`,
	},
}

// EnsureMigrated creates the ledger schema when the provision_runs table is missing.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger zerolog.Logger, dbHost string) error {
	start := time.Now()
	log := logger.With().Str("component", "database").Str("db_host", dbHost).Logger()

	var exists bool
	query := "SELECT to_regclass('public.provision_runs') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error().Err(err).Str("event", "db_migration_failed").Dur("duration", time.Since(start)).Msg("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info().Str("event", "db_migration_skip").Dur("duration", time.Since(start)).Msg("schema already exists, skipping migration")
		return nil
	}

	log.Info().Str("event", "db_migration_start").Msg("migrating ledger schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error().Err(err).
				Str("event", "db_migration_failed").
				Str("migration_step", step.Name).
				Dur("step_duration", time.Since(stepStart)).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info().Str("event", "db_migration_step").Str("migration_step", step.Name).Dur("step_duration", time.Since(stepStart)).Msg("migration step applied")
	}

	log.Info().Str("event", "db_migration_success").Dur("duration", time.Since(start)).Msg("ledger schema ready")
	return nil
}
