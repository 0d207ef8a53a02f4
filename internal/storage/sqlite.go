package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mattjoyce/openbook/internal/log"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := validateSQLiteFilesystem(path); err != nil {
		if errors.Is(err, ErrNetworkFilesystem) {
			return nil, err
		}
		log.WithComponent("storage").Warn("could not check database filesystem", "path", path, "error", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS query_cache (
  fingerprint TEXT NOT NULL,
  position    TEXT NOT NULL,
  book        TEXT NOT NULL,
  edges       JSON NOT NULL,
  hits        INTEGER NOT NULL DEFAULT 0,
  created_at  TEXT NOT NULL,
  expires_at  TEXT,
  PRIMARY KEY (fingerprint, position)
);`,
		`CREATE TABLE IF NOT EXISTS query_log (
  id           TEXT PRIMARY KEY,
  book         TEXT NOT NULL,
  fingerprint  TEXT NOT NULL,
  position     TEXT NOT NULL,
  status       TEXT NOT NULL,
  source       TEXT NOT NULL,
  edge_count   INTEGER NOT NULL DEFAULT 0,
  best_move    TEXT,
  submitted_by TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  last_error   TEXT,
  stderr       TEXT
);`,
		`CREATE TABLE IF NOT EXISTS service_state (
  scope      TEXT PRIMARY KEY,
  state      JSON NOT NULL DEFAULT '{}',
  updated_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS query_cache_expires_at_idx ON query_cache(expires_at);`,
		`CREATE INDEX IF NOT EXISTS query_log_created_at_idx ON query_log(created_at);`,
		`CREATE INDEX IF NOT EXISTS query_log_book_status_idx ON query_log(book, status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
