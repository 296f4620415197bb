// Package db opens the shared SQLite database and applies schema
// migrations for every persistent table in the core.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Open opens (or creates) the SQLite database at path and runs
// migrations. Use ":memory:" for tests. Foreign keys are enabled on
// every connection so symbol rows cascade when a file row is dropped.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(context.Background(), handle); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

// Migrate creates every table the core persists to. Statements are
// idempotent; callers may run them against an already-migrated database.
func Migrate(ctx context.Context, handle *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(name, project_id, session_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_versions (
			version_id TEXT PRIMARY KEY,
			artifact_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(artifact_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS file_index (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			file_path TEXT NOT NULL,
			component TEXT,
			language TEXT,
			extension TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			line_count INTEGER NOT NULL DEFAULT 0,
			is_test INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(project_path, file_path)
		)`,
		`CREATE TABLE IF NOT EXISTS file_symbols (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_index_id INTEGER NOT NULL REFERENCES file_index(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			line INTEGER NOT NULL,
			parent_symbol TEXT,
			signature TEXT,
			doc_comment TEXT,
			start_line INTEGER,
			end_line INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_symbols_name ON file_symbols(name)`,
		`CREATE TABLE IF NOT EXISTS file_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_path TEXT NOT NULL,
			file_path TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(project_path, file_path, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_embeddings_file ON file_embeddings(project_path, file_path)`,
		`CREATE TABLE IF NOT EXISTS remote_audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			adapter_type TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			username TEXT,
			command_text TEXT NOT NULL,
			command_type TEXT NOT NULL,
			result_status TEXT NOT NULL,
			error_message TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := handle.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
