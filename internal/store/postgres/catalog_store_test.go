package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

const movieURL = "https://www.imdb.com/title/tt0000001/"

var releaseDate = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func record() crawler.MovieRecord {
	return crawler.MovieRecord{
		IMDbURL:     movieURL,
		Title:       "The Long Haul",
		ReleaseDate: releaseDate,
		Kind:        "Movie",
		Country:     "USA",
		Description: "A trucker's last run.",
	}
}

func newStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewCatalogStore(mock, zap.NewNop()), mock
}

func expectLookup(mock pgxmock.PgxPoolIface, title, description string) {
	rows := pgxmock.NewRows([]string{"movie_id", "title", "release_date", "kind", "country", "description"}).
		AddRow(int64(42), title, releaseDate, "Movie", "USA", description)
	mock.ExpectQuery("SELECT movie_id, title, release_date").
		WithArgs(movieURL).
		WillReturnRows(rows)
}

func TestUpsertMovieInsertsWhenAbsent(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectQuery("SELECT movie_id, title, release_date").
		WithArgs(movieURL).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO movies").
		WithArgs(movieURL, "The Long Haul", releaseDate, "Movie", "USA", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	outcome, err := store.UpsertMovie(context.Background(), record())
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeCreated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMovieUnchangedWritesNothing(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	expectLookup(mock, "The Long Haul", "A trucker's last run.")

	outcome, err := store.UpsertMovie(context.Background(), record())
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeUnchanged, outcome)
	// No UPDATE expectation registered: any write would fail the mock.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMovieUpdatesOnChange(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	expectLookup(mock, "Working Title", "A trucker's last run.")
	mock.ExpectExec("UPDATE movies").
		WithArgs("The Long Haul", releaseDate, "Movie", "USA", pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	outcome, err := store.UpsertMovie(context.Background(), record())
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMovieEmptyDescriptionIsNotAChange(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	expectLookup(mock, "The Long Haul", "A trucker's last run.")

	rec := record()
	rec.Description = ""
	outcome, err := store.UpsertMovie(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeUnchanged, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMovieEmptyDescriptionKeepsStoredValue(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	// Title changed, description absent: the update fires but passes NULL so
	// COALESCE keeps the stored description.
	expectLookup(mock, "Working Title", "A trucker's last run.")
	mock.ExpectExec("UPDATE movies").
		WithArgs("The Long Haul", releaseDate, "Movie", "USA", (*string)(nil), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec := record()
	rec.Description = ""
	outcome, err := store.UpsertMovie(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCreditsInsertsPersonAndEdge(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectQuery("SELECT movie_id FROM movies").
		WithArgs(movieURL).
		WillReturnRows(pgxmock.NewRows([]string{"movie_id"}).AddRow(int64(42)))
	mock.ExpectQuery("INSERT INTO persons").
		WithArgs("nm0000123", "Jordan Vega").
		WillReturnRows(pgxmock.NewRows([]string{"person_id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO movie_credits").
		WithArgs(int64(42), int64(7), "Director").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertCredits(context.Background(), movieURL, []crawler.CastCredit{
		{IMDbID: "nm0000123", Name: "Jordan Vega", Role: "Director"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCreditsExistingPersonFallsBackToSelect(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	// The person row already exists (or another instance just created it):
	// ON CONFLICT DO NOTHING returns no row and the select supplies the ID.
	mock.ExpectQuery("SELECT movie_id FROM movies").
		WithArgs(movieURL).
		WillReturnRows(pgxmock.NewRows([]string{"movie_id"}).AddRow(int64(42)))
	mock.ExpectQuery("INSERT INTO persons").
		WithArgs("nm0000123", "Jordan Vega").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT person_id FROM persons").
		WithArgs("nm0000123").
		WillReturnRows(pgxmock.NewRows([]string{"person_id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO movie_credits").
		WithArgs(int64(42), int64(7), "Director").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertCredits(context.Background(), movieURL, []crawler.CastCredit{
		{IMDbID: "nm0000123", Name: "Jordan Vega", Role: "Director"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCreditsDuplicateEdgeIsIgnored(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectQuery("SELECT movie_id FROM movies").
		WithArgs(movieURL).
		WillReturnRows(pgxmock.NewRows([]string{"movie_id"}).AddRow(int64(42)))
	mock.ExpectQuery("INSERT INTO persons").
		WithArgs("nm0000123", "Jordan Vega").
		WillReturnRows(pgxmock.NewRows([]string{"person_id"}).AddRow(int64(7)))
	// ON CONFLICT DO NOTHING: zero rows affected, still a success.
	mock.ExpectExec("INSERT INTO movie_credits").
		WithArgs(int64(42), int64(7), "Director").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.UpsertCredits(context.Background(), movieURL, []crawler.CastCredit{
		{IMDbID: "nm0000123", Name: "Jordan Vega", Role: "Director"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCreditsMissingMovieIsWarningOnly(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	mock.ExpectQuery("SELECT movie_id FROM movies").
		WithArgs(movieURL).
		WillReturnError(pgx.ErrNoRows)

	err := store.UpsertCredits(context.Background(), movieURL, []crawler.CastCredit{
		{IMDbID: "nm0000123", Name: "Jordan Vega", Role: "Director"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)

	startedAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(startedAt, 3, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.RecordRun(context.Background(), crawler.RunSummary{
		StartedAt:     startedAt,
		MoviesCreated: 3,
		MoviesUpdated: 1,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
