package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

func newQueue(t *testing.T) (*TaskQueue, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	q := NewTaskQueue(mock, fakeClock{now: now}, zap.NewNop())
	return q, mock, now
}

func TestEnqueueIfAbsentInsertsPending(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	mock.ExpectExec("INSERT INTO crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000001/", crawler.TaskStatusPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := q.EnqueueIfAbsent(context.Background(), "https://www.imdb.com/title/tt0000001/")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueIfAbsentIgnoresConflict(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	// ON CONFLICT DO NOTHING reports zero rows; that is still a success.
	mock.ExpectExec("INSERT INTO crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000001/", crawler.TaskStatusPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := q.EnqueueIfAbsent(context.Background(), "https://www.imdb.com/title/tt0000001/")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimStampsOwner(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	mock.ExpectExec("INSERT INTO crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000002/", crawler.TaskStatusInProgress, "crawler-a").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := q.Claim(context.Background(), "https://www.imdb.com/title/tt0000002/", "crawler-a")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDone(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	mock.ExpectExec("UPDATE crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000003/", crawler.TaskStatusDone).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := q.MarkDone(context.Background(), "https://www.imdb.com/title/tt0000003/")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRecordsReason(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	mock.ExpectExec("UPDATE crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000004/", crawler.TaskStatusFailed, "fetch failed: status 503").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := q.MarkFailed(context.Background(), "https://www.imdb.com/title/tt0000004/", "fetch failed: status 503")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListClaimableExcludesInProgress(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	rows := pgxmock.NewRows([]string{"url"}).
		AddRow("https://www.imdb.com/title/tt0000005/").
		AddRow("https://www.imdb.com/title/tt0000006/")
	mock.ExpectQuery("SELECT url").
		WithArgs(crawler.TaskStatusInProgress).
		WillReturnRows(rows)

	urls, err := q.ListClaimable(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://www.imdb.com/title/tt0000005/",
		"https://www.imdb.com/title/tt0000006/",
	}, urls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoverStaleResetsOldTasks(t *testing.T) {
	t.Parallel()

	q, mock, now := newQueue(t)

	mock.ExpectExec("UPDATE crawl_tasks").
		WithArgs(
			crawler.TaskStatusPending,
			StaleResetMessage,
			crawler.TaskStatusInProgress,
			now.Add(-time.Hour),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := q.RecoverStale(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoverStaleNothingToDo(t *testing.T) {
	t.Parallel()

	q, mock, now := newQueue(t)

	mock.ExpectExec("UPDATE crawl_tasks").
		WithArgs(
			crawler.TaskStatusPending,
			StaleResetMessage,
			crawler.TaskStatusInProgress,
			now.Add(-time.Hour),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := q.RecoverStale(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageErrorsSurface(t *testing.T) {
	t.Parallel()

	q, mock, _ := newQueue(t)

	boom := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO crawl_tasks").
		WithArgs("https://www.imdb.com/title/tt0000007/", crawler.TaskStatusPending).
		WillReturnError(boom)

	err := q.EnqueueIfAbsent(context.Background(), "https://www.imdb.com/title/tt0000007/")
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
