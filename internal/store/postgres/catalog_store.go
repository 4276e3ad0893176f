// Package postgres persists extracted movie records into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

// PgxIface is the pool surface the store needs. pgxmock satisfies it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CatalogStore implements crawler.CatalogStore. Writes are change-aware:
// re-processing an unchanged page touches nothing, so repeated cycles
// converge instead of churning timestamps.
type CatalogStore struct {
	pool   PgxIface
	logger *zap.Logger
}

// NewCatalogStore constructs a CatalogStore over an existing pool.
func NewCatalogStore(pool PgxIface, logger *zap.Logger) *CatalogStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogStore{
		pool:   pool,
		logger: logger,
	}
}

type storedMovie struct {
	id          int64
	title       string
	releaseDate time.Time
	kind        string
	country     string
	description string
}

// UpsertMovie inserts the movie if its IMDb URL is unseen, otherwise updates
// it only when a mutable field actually changed. An empty incoming
// description never erases a stored one.
func (s *CatalogStore) UpsertMovie(ctx context.Context, record crawler.MovieRecord) (crawler.UpsertOutcome, error) {
	record = normalize(record)

	query := `
		SELECT movie_id, title, release_date, kind, country, COALESCE(description, '')
		FROM movies
		WHERE imdb_url = $1;
	`
	var stored storedMovie
	err := s.pool.QueryRow(ctx, query, record.IMDbURL).Scan(
		&stored.id,
		&stored.title,
		&stored.releaseDate,
		&stored.kind,
		&stored.country,
		&stored.description,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return s.insertMovie(ctx, record)
	case err != nil:
		return crawler.OutcomeUnchanged, fmt.Errorf("look up movie: %w", err)
	}

	if !changed(stored, record) {
		return crawler.OutcomeUnchanged, nil
	}

	update := `
		UPDATE movies
		SET title = $1,
			release_date = $2,
			kind = $3,
			country = $4,
			description = COALESCE($5, description),
			updated_at = NOW()
		WHERE movie_id = $6;
	`
	_, err = s.pool.Exec(ctx, update,
		record.Title,
		record.ReleaseDate,
		record.Kind,
		record.Country,
		nullIfEmpty(record.Description),
		stored.id,
	)
	if err != nil {
		return crawler.OutcomeUnchanged, fmt.Errorf("update movie: %w", err)
	}
	return crawler.OutcomeUpdated, nil
}

func (s *CatalogStore) insertMovie(ctx context.Context, record crawler.MovieRecord) (crawler.UpsertOutcome, error) {
	query := `
		INSERT INTO movies (imdb_url, title, release_date, kind, country, description)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, query,
		record.IMDbURL,
		record.Title,
		record.ReleaseDate,
		record.Kind,
		record.Country,
		nullIfEmpty(record.Description),
	)
	if err != nil {
		return crawler.OutcomeUnchanged, fmt.Errorf("insert movie: %w", err)
	}
	return crawler.OutcomeCreated, nil
}

// UpsertCredits lazily creates persons and inserts one edge per credit. A
// duplicate (movie, person, role) triple is silently skipped so re-crawls
// stay idempotent.
func (s *CatalogStore) UpsertCredits(ctx context.Context, movieURL string, credits []crawler.CastCredit) error {
	var movieID int64
	err := s.pool.QueryRow(ctx, `SELECT movie_id FROM movies WHERE imdb_url = $1;`, movieURL).Scan(&movieID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		s.logger.Warn("movie missing for credits", zap.String("imdb_url", movieURL))
		return nil
	case err != nil:
		return fmt.Errorf("look up movie for credits: %w", err)
	}

	for _, credit := range credits {
		personID, err := s.ensurePerson(ctx, credit)
		if err != nil {
			return err
		}
		edge := `
			INSERT INTO movie_credits (movie_id, person_id, role)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING;
		`
		if _, err := s.pool.Exec(ctx, edge, movieID, personID, credit.Role); err != nil {
			return fmt.Errorf("insert credit: %w", err)
		}
	}
	return nil
}

// ensurePerson lazily creates the person row. Insert-first: when several
// instances discover the same person at once, the losers hit the conflict
// clause instead of a unique violation and fall through to the select.
func (s *CatalogStore) ensurePerson(ctx context.Context, credit crawler.CastCredit) (int64, error) {
	insert := `
		INSERT INTO persons (imdb_id, full_name)
		VALUES ($1, $2)
		ON CONFLICT (imdb_id) DO NOTHING
		RETURNING person_id;
	`
	var personID int64
	err := s.pool.QueryRow(ctx, insert, credit.IMDbID, credit.Name).Scan(&personID)
	if err == nil {
		return personID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert person: %w", err)
	}

	// Conflict skipped the insert, so the row already exists.
	err = s.pool.QueryRow(ctx, `SELECT person_id FROM persons WHERE imdb_id = $1;`, credit.IMDbID).Scan(&personID)
	if err != nil {
		return 0, fmt.Errorf("look up person: %w", err)
	}
	return personID, nil
}

// RecordRun appends one run-log row.
func (s *CatalogStore) RecordRun(ctx context.Context, summary crawler.RunSummary) error {
	query := `
		INSERT INTO crawl_runs (started_at, movies_created, movies_updated)
		VALUES ($1, $2, $3);
	`
	_, err := s.pool.Exec(ctx, query, summary.StartedAt, summary.MoviesCreated, summary.MoviesUpdated)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func normalize(record crawler.MovieRecord) crawler.MovieRecord {
	record.Title = strings.TrimSpace(record.Title)
	record.Kind = strings.TrimSpace(record.Kind)
	record.Country = strings.TrimSpace(record.Country)
	record.Description = strings.TrimSpace(record.Description)
	return record
}

func changed(stored storedMovie, record crawler.MovieRecord) bool {
	if stored.title != record.Title ||
		stored.kind != record.Kind ||
		stored.country != record.Country {
		return true
	}
	if !stored.releaseDate.Equal(record.ReleaseDate) {
		return true
	}
	// A present description that differs counts; an absent one never does.
	return record.Description != "" && stored.description != record.Description
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
