package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"skimo-var/config"
	"skimo-var/core/utils"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NewDB opens the configured database. Venue boxes run embedded sqlite so a
// flaky uplink never takes adjudication down; hosted deployments point at
// postgres.
func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			return nil, fmt.Errorf("sqlite driver requires db_path")
		}
		dsn := "file:" + filepath.ToSlash(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// modernc sqlite serializes writes; one connection avoids
		// SQLITE_BUSY churn under concurrent handlers.
		db.SetMaxOpenConns(1)
		if logger != nil {
			logger.Printf("DB sqlite %s", path)
		}
		return db, nil
	case DriverPostgres:
		url := strings.TrimSpace(cfg.DBURL)
		if url == "" {
			return nil, fmt.Errorf("postgres driver requires db_url")
		}
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Printf("DB postgres")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}
