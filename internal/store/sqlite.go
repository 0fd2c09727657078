// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Serves as local registry and fallback mirror with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			clearance     INTEGER NOT NULL,
			super_admin   INTEGER NOT NULL DEFAULT 0,
			approved      INTEGER NOT NULL DEFAULT 0,
			title         TEXT,
			department    TEXT,
			site          TEXT,
			avatar_url    TEXT,
			password_hash TEXT,
			created_at    TEXT NOT NULL,

			CHECK (clearance BETWEEN 1 AND 6)
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_clearance ON users(clearance);

		CREATE TABLE IF NOT EXISTS reports (
			id               TEXT PRIMARY KEY,
			author_id        TEXT NOT NULL,
			author_name      TEXT NOT NULL,
			author_clearance INTEGER NOT NULL,
			type             TEXT NOT NULL,
			severity         TEXT NOT NULL,
			title            TEXT NOT NULL,
			content          TEXT NOT NULL,
			target_id        TEXT,
			image_url        TEXT,
			created_at       TEXT NOT NULL,
			archived         INTEGER NOT NULL DEFAULT 0,

			CHECK (type IN ('INCIDENT', 'OBSERVATION', 'AUDIT', 'SECURITY')),
			CHECK (severity IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL'))
		);

		CREATE INDEX IF NOT EXISTS idx_reports_author ON reports(author_id);
		CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			sender_id   TEXT NOT NULL,
			receiver_id TEXT,
			text        TEXT NOT NULL,
			image_url   TEXT,
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

		-- Key to JSON-string mapping: session cache and small persisted state
		CREATE TABLE IF NOT EXISTS localstore (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SetValue stores a value under key, replacing any previous value.
func (s *SQLiteStore) SetValue(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT OR REPLACE INTO localstore (key, value, updated_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving value: %w", err)
	}

	s.logger.Debug("saved value", "key", key, "size", len(value))
	return nil
}

// GetValue retrieves the value stored under key.
// Returns ErrNotFound for missing keys.
func (s *SQLiteStore) GetValue(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM localstore WHERE key = ?`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying value: %w", err)
	}

	return value, nil
}

// DeleteValue removes a key. Deleting a missing key succeeds silently.
func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM localstore WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting value: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
