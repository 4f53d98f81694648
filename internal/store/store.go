package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS honeypot_sessions (
	session_id TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL,
	msg_count  INTEGER NOT NULL DEFAULT 0,
	reported   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS honeypot_messages (
	id         UUID PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES honeypot_sessions(session_id) ON DELETE CASCADE,
	turn_index INTEGER NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, turn_index)
);

CREATE TABLE IF NOT EXISTS honeypot_intelligence (
	session_id TEXT PRIMARY KEY REFERENCES honeypot_sessions(session_id) ON DELETE CASCADE,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the honeypot tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
