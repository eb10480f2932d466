// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides credential persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
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

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
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
		CREATE TABLE IF NOT EXISTS credentials (
			chat_id    INTEGER PRIMARY KEY,
			blob       BLOB NOT NULL,
			created_at TEXT NOT NULL,
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

// Exists reports whether a credential is stored for the chat.
func (s *SQLiteStore) Exists(ctx context.Context, chatID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM credentials WHERE chat_id = ?`, chatID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying credential: %w", err)
	}
	return true, nil
}

// Create stores a new credential for the chat. An existing credential is
// left untouched: authorization completion must not clobber a blob that a
// concurrent refresh already rotated.
func (s *SQLiteStore) Create(ctx context.Context, chatID int64, blob []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (chat_id, blob, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING
	`, chatID, blob, now, now)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("credential already exists, create skipped", "chat_id", chatID)
		return nil
	}

	s.logger.Debug("credential created", "chat_id", chatID)
	return nil
}

// Get returns the credential blob for the chat.
// Returns ErrNotFound if none is stored.
func (s *SQLiteStore) Get(ctx context.Context, chatID int64) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM credentials WHERE chat_id = ?`, chatID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return blob, nil
}

// Update replaces the credential blob for the chat in a single statement,
// keeping refresh-triggered rewrites atomic per chat.
// Returns ErrNotFound if none is stored.
func (s *SQLiteStore) Update(ctx context.Context, chatID int64, blob []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET blob = ?, updated_at = ? WHERE chat_id = ?
	`, blob, now, chatID)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("credential updated", "chat_id", chatID)
	return nil
}

// Delete removes the credential for the chat.
func (s *SQLiteStore) Delete(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	s.logger.Debug("credential deleted", "chat_id", chatID)
	return nil
}
