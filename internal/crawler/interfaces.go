package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a single page body. Non-2xx responses and transport
// problems are returned as errors; callers decide how to record them.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns raw page content into structured data.
type Extractor interface {
	// ExtractListing returns the deduplicated set of absolute title URLs
	// discovered on the listing page. An empty result is not an error.
	ExtractListing(content []byte) ([]string, error)
	// ExtractDetail parses one title page into a MovieRecord. Failures are
	// reported as *ExtractionError carrying the source URL.
	ExtractDetail(content []byte, sourceURL string) (MovieRecord, error)
}

// TaskQueue is the durable, shared work queue. All mutations are single-row,
// single-statement operations so that any number of instances can poll the
// same table without in-process coordination.
type TaskQueue interface {
	// EnqueueIfAbsent inserts a pending task for the URL; it is a no-op if
	// the URL has been seen before, whatever its current status.
	EnqueueIfAbsent(ctx context.Context, url string) error
	// Claim moves the task to in_progress on behalf of instance, stamping
	// started_at and clearing any previous error. Any status may be
	// claimed; re-claiming done/failed tasks is how re-crawls happen.
	Claim(ctx context.Context, url, instance string) error
	// MarkDone resolves the task successfully and clears the error message.
	MarkDone(ctx context.Context, url string) error
	// MarkFailed resolves the task with a reason for the next cycle to see.
	MarkFailed(ctx context.Context, url, reason string) error
	// ListClaimable snapshots every URL not currently in_progress.
	ListClaimable(ctx context.Context) ([]string, error)
	// RecoverStale resets in_progress tasks older than timeout back to
	// pending and reports how many rows were reset.
	RecoverStale(ctx context.Context, timeout time.Duration) (int64, error)
}

// CatalogStore persists extracted records idempotently.
type CatalogStore interface {
	// UpsertMovie inserts or updates the movie keyed by its IMDb URL,
	// writing only when a mutable field actually changed.
	UpsertMovie(ctx context.Context, record MovieRecord) (UpsertOutcome, error)
	// UpsertCredits lazily creates persons and inserts movie/person/role
	// edges, ignoring duplicates. A missing movie is a logged warning, not
	// an error.
	UpsertCredits(ctx context.Context, movieURL string, credits []CastCredit) error
	// RecordRun appends one run-log row.
	RecordRun(ctx context.Context, summary RunSummary) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes change events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
