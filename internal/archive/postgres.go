package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
    id            BIGSERIAL PRIMARY KEY,
    connection_id TEXT        NOT NULL,
    transcript    TEXT        NOT NULL,
    reply         TEXT        NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS exchanges_connection_idx ON exchanges (connection_id);`

// PostgresStore archives exchanges in PostgreSQL over a pgx pool. All
// operations are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection, and ensures the
// exchanges table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveExchange appends one exchange.
func (s *PostgresStore) SaveExchange(ctx context.Context, ex Exchange) error {
	const q = `
		INSERT INTO exchanges (connection_id, transcript, reply, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, ex.ConnectionID, ex.Transcript, ex.Reply, ex.CreatedAt); err != nil {
		return fmt.Errorf("archive: save exchange: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
