// Package crawler defines core types shared across subsystems.
package crawler

import "time"

// TaskStatus represents the lifecycle state of a crawl task.
type TaskStatus string

// Task status values persisted in the task table.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one row of the durable work queue, keyed by the title URL it
// tracks. Tasks accumulate as a ledger; they are reset and re-claimed across
// cycles but never deleted.
type Task struct {
	URL              string
	Status           TaskStatus
	StartedAt        *time.Time
	FinishedAt       *time.Time
	LastUpdated      time.Time
	AssignedInstance *string
	ErrorMessage     *string
}

// CastCredit is one person/role pair extracted from a title page.
type CastCredit struct {
	IMDbID string
	Name   string
	Role   string
}

// MovieRecord is the structured result of extracting one title detail page.
// IMDbURL is the stable external identifier; Description is optional and an
// empty string means "unknown", never "erase".
type MovieRecord struct {
	IMDbURL     string
	Title       string
	ReleaseDate time.Time
	Kind        string
	Country     string
	Description string
	Cast        []CastCredit
}

// UpsertOutcome reports what a movie upsert actually did.
type UpsertOutcome int

// Upsert outcomes. Unchanged means the stored row already matched the
// incoming record and nothing was written.
const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeCreated
	OutcomeUpdated
)

// String returns the outcome label used in logs and metrics.
func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// RunSummary is the append-only record of one orchestration cycle.
type RunSummary struct {
	StartedAt     time.Time
	MoviesCreated int
	MoviesUpdated int
}

// ChangeEvent is published when a movie row is created or updated.
type ChangeEvent struct {
	IMDbURL   string    `json:"imdb_url"`
	Title     string    `json:"title"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}
