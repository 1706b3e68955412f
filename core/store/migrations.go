package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"skimo-var/core/utils"
)

//go:embed migrations_pg/*.sql
var pgMigrations embed.FS

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		race_id INTEGER NOT NULL,
		location_id TEXT,
		status TEXT NOT NULL DEFAULT 'unofficial',
		decision TEXT NOT NULL DEFAULT 'pending',
		report_count INTEGER NOT NULL DEFAULT 0,
		officialized_by INTEGER,
		officialized_at TIMESTAMP,
		decided_by INTEGER,
		decided_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_token TEXT UNIQUE NOT NULL,
		race_id INTEGER NOT NULL,
		incident_id INTEGER NOT NULL,
		location_id TEXT,
		reporter_id INTEGER NOT NULL,
		bib_number INTEGER NOT NULL,
		athlete_position INTEGER,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		stale_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY(incident_id) REFERENCES incidents(id)
	);`,
	`CREATE TABLE IF NOT EXISTS report_media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id INTEGER NOT NULL,
		storage_key TEXT NOT NULL,
		FOREIGN KEY(report_id) REFERENCES reports(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS incident_merges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_incident_id INTEGER NOT NULL,
		target_incident_id INTEGER NOT NULL,
		merged_by INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS roster (
		race_id INTEGER NOT NULL,
		bib_number INTEGER NOT NULL,
		athlete_position INTEGER NOT NULL DEFAULT 0,
		display_name TEXT NOT NULL,
		team_name TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (race_id, bib_number, athlete_position)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_incident ON reports(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_race ON reports(race_id);`,
	`CREATE INDEX IF NOT EXISTS idx_reports_stale_sweep ON reports(status, stale_at);`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_race ON incidents(race_id);`,
	`CREATE INDEX IF NOT EXISTS idx_incident_merges_target ON incident_merges(target_incident_id);`,
}

// ApplyMigrations brings the schema up to date: goose for postgres,
// the in-code statement list for sqlite.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string, logger *utils.Logger) error {
	if driver == DriverPostgres {
		return applyGooseMigrations(ctx, db, logger)
	}
	return applySQLiteMigrations(ctx, db, logger)
}

func applySQLiteMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying sqlite migrations")
	}
	for i, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration #%d failed: %w", i+1, err)
		}
	}
	return nil
}

func applyGooseMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	if logger != nil {
		logger.Printf("applying goose migrations")
	}
	goose.SetBaseFS(pgMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations_pg")
}
