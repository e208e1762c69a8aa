package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the table PgStore reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS client_storage (
	profile    TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (profile, key)
)`

// pgExecQuerier is the subset of *pgxpool.Pool used by PgStore.
type pgExecQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is a PostgreSQL-backed Store using pgx/v5, for managed desktops
// whose client state lives in a shared database.
type PgStore struct {
	db      pgExecQuerier
	profile string
}

// NewPgStore creates a PostgreSQL store scoped to profile. db is usually a
// *pgxpool.Pool.
func NewPgStore(db pgExecQuerier, profile string) *PgStore {
	if profile == "" {
		profile = "default"
	}
	return &PgStore{db: db, profile: profile}
}

// Migrate creates the backing table if it does not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create client_storage: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *PgStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx,
		`SELECT value FROM client_storage WHERE profile = $1 AND key = $2`,
		s.profile, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query client_storage %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *PgStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO client_storage (profile, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (profile, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.profile, key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert client_storage %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *PgStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM client_storage WHERE profile = $1 AND key = $2`,
		s.profile, key,
	)
	if err != nil {
		return fmt.Errorf("delete client_storage %q: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the table is reachable.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT 1 FROM client_storage LIMIT 1`).Scan(&n); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ping client_storage: %w", err)
	}
	return nil
}
