// Package postgres persists author name registries in PostgreSQL.
//
// Each author owns one row in name_registries whose names column holds the
// registry as a JSONB array. [Migrate] creates the table and is safe to call
// on every start.
//
// Usage:
//
//	store, err := postgres.Open(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/quillmate/internal/registry"
	"github.com/MrWong99/quillmate/pkg/types"
)

// Schema is the DDL applied by [Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS name_registries (
    author_id  TEXT         PRIMARY KEY,
    names      JSONB        NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// DB is the subset of [pgxpool.Pool] the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

var (
	_ registry.Store = (*Store)(nil)
	_ DB             = (*pgxpool.Pool)(nil)
)

// Store is a PostgreSQL-backed [registry.Store]. All methods are safe for
// concurrent use.
type Store struct {
	db    DB
	close func()
}

// New returns a Store on an existing connection. The caller owns db and must
// have run [Migrate].
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Open connects to dsn, verifies the connection and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres registry: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres registry: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres registry: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{db: pool, close: pool.Close}, nil
}

// Migrate creates the registry table if it does not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres registry: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool opened by [Open]. It is a no-op for
// stores created with [New].
func (s *Store) Close() { s.close() }

// Load implements [registry.Store].
func (s *Store) Load(ctx context.Context, authorID string) ([]types.TrackedName, error) {
	const q = `SELECT names FROM name_registries WHERE author_id = $1`

	var raw []byte
	err := s.db.QueryRow(ctx, q, authorID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []types.TrackedName{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres registry: load %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}

	var names []types.TrackedName
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("postgres registry: decode %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}
	return registry.Clone(names), nil
}

// Save implements [registry.Store]. It upserts the author's row.
func (s *Store) Save(ctx context.Context, authorID string, names []types.TrackedName) error {
	const q = `
		INSERT INTO name_registries (author_id, names, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (author_id) DO UPDATE
		    SET names = EXCLUDED.names, updated_at = now()`

	payload, err := json.Marshal(registry.Clone(names))
	if err != nil {
		return fmt.Errorf("postgres registry: encode %q: %w", authorID, err)
	}
	if _, err := s.db.Exec(ctx, q, authorID, payload); err != nil {
		return fmt.Errorf("postgres registry: save %q: %w: %w", authorID, registry.ErrRegistryUnavailable, err)
	}
	return nil
}

// Ping implements [registry.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres registry: ping: %w: %w", registry.ErrRegistryUnavailable, err)
	}
	return nil
}
