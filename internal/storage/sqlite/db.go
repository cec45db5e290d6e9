// Package sqlite
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"dockreclaim/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

func NewSqliteDB(dbPath string, log logger.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Debug("sqlite connection established", "path", dbPath)

	if err := runMigration(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigration(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS reclaim_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		exit_code INTEGER NOT NULL,
		measure_path TEXT NOT NULL DEFAULT '',
		measure_failed INTEGER NOT NULL DEFAULT 0,
		free_before INTEGER NOT NULL DEFAULT 0,
		free_after INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS reclaim_steps (
		run_id TEXT NOT NULL REFERENCES reclaim_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_reclaim_runs_started_at ON reclaim_runs(started_at);
	`
	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to migrate reclaim tables: %w", err)
	}
	return nil
}
