package localstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool used by PgStore; pgxmock pools satisfy it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the backing table. Applied by EnsureSchema at startup.
const Schema = `CREATE TABLE IF NOT EXISTS client_store (
	store_key  TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type PgStore struct {
	db     DBTX
	logger *slog.Logger
}

func NewPgStore(db DBTX, logger *slog.Logger) *PgStore {
	return &PgStore{db: db, logger: logger.With("component", "localstore_pg")}
}

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("creating client_store table: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `SELECT value FROM client_store WHERE store_key = $1`
	var value []byte
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		s.logger.ErrorContext(ctx, "Error reading client_store", "key", key, "error", err)
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PgStore) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO client_store (store_key, value, updated_at) VALUES ($1, $2, NOW())
	          ON CONFLICT (store_key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		s.logger.ErrorContext(ctx, "Error writing client_store", "key", key, "error", err)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM client_store WHERE store_key = ANY($1)`
	if _, err := s.db.Exec(ctx, query, keys); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting from client_store", "keys", keys, "error", err)
		return fmt.Errorf("deleting keys: %w", err)
	}
	return nil
}
