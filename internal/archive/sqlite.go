package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    connection_id TEXT    NOT NULL,
    transcript    TEXT    NOT NULL,
    reply         TEXT    NOT NULL,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS exchanges_connection_idx ON exchanges (connection_id);`

// SQLiteStore archives exchanges in a local SQLite file. It needs no cgo;
// the driver is pure Go.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// exchanges table exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveExchange appends one exchange. Timestamps are stored as Unix
// milliseconds.
func (s *SQLiteStore) SaveExchange(ctx context.Context, ex Exchange) error {
	const q = `
		INSERT INTO exchanges (connection_id, transcript, reply, created_at)
		VALUES (?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, q, ex.ConnectionID, ex.Transcript, ex.Reply, ex.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("archive: save exchange: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
