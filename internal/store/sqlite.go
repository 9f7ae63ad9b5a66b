// Package store keeps the wizard slot in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/espace-membre/internal/wizard"
)

const queryTimeout = 5 * time.Second

// SQLiteStore implements wizard.StateStore on a key/value slot table.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLite opens (and creates if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	s := &SQLiteStore{db: db, key: wizard.SlotKey}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS slots (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load reads the wizard slot.
func (s *SQLiteStore) Load() (wizard.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return wizard.State{}, wizard.ErrStateNotFound
	}
	if err != nil {
		return wizard.State{}, fmt.Errorf("store: load slot: %w", err)
	}
	return wizard.DecodeState([]byte(value))
}

// Save replaces the wizard slot.
func (s *SQLiteStore) Save(state wizard.State) error {
	encoded, err := wizard.EncodeState(state)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := `
		INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, s.key, string(encoded), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: save slot: %w", err)
	}
	return nil
}

// Clear removes the wizard slot.
func (s *SQLiteStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, s.key); err != nil {
		return fmt.Errorf("store: clear slot: %w", err)
	}
	return nil
}

// SetRaw writes value verbatim into the slot.
func (s *SQLiteStore) SetRaw(value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO slots (key, value, updated_at) VALUES (?, ?, ?)`, s.key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: write raw slot: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ wizard.StateStore = (*SQLiteStore)(nil)
