// Package database builds the shared Postgres pool and bootstraps the schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool creates a pgx connection pool from the provided config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Schema is the DDL applied at startup. Multiple instances may race to apply
// it; every statement is IF NOT EXISTS so the race is harmless.
// TODO: move to golang-migrate once the schema starts evolving.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_tasks (
	url TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'pending',
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	assigned_instance TEXT,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS movies (
	movie_id BIGSERIAL PRIMARY KEY,
	imdb_url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	release_date DATE NOT NULL,
	kind TEXT NOT NULL,
	country TEXT NOT NULL,
	description TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS persons (
	person_id BIGSERIAL PRIMARY KEY,
	imdb_id TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS movie_credits (
	movie_id BIGINT NOT NULL REFERENCES movies(movie_id),
	person_id BIGINT NOT NULL REFERENCES persons(person_id),
	role TEXT NOT NULL,
	PRIMARY KEY (movie_id, person_id, role)
);

CREATE TABLE IF NOT EXISTS crawl_runs (
	run_id BIGSERIAL PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	movies_created INT NOT NULL,
	movies_updated INT NOT NULL
);
`

// EnsureSchema applies the bootstrap DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
