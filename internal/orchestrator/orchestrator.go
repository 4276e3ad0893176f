// Package orchestrator drives one crawl cycle over the shared task queue.
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moviefeed/release-crawler/internal/crawler"
	"github.com/moviefeed/release-crawler/internal/hash/sha256"
	"github.com/moviefeed/release-crawler/internal/metrics"
)

// Config controls Orchestrator behavior.
type Config struct {
	ListingURL    string
	InstanceName  string
	Concurrency   int
	StaleAfter    time.Duration
	ArchivePrefix string
	EventTopic    string
}

// Orchestrator sequences one full crawl cycle: stale recovery, seeding from
// the listing page, and a bounded fan-out of per-title pipelines. It owns no
// durable state; everything goes through the queue and the store, which is
// what lets any number of instances run the same cycle concurrently.
type Orchestrator struct {
	queue     crawler.TaskQueue
	store     crawler.CatalogStore
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	archive   crawler.BlobStore // optional
	publisher crawler.Publisher // optional
	clock     crawler.Clock
	hasher    *sha256.Hasher
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. archive and publisher may be nil.
func New(
	queue crawler.TaskQueue,
	store crawler.CatalogStore,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	archive crawler.BlobStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	metrics.Init()
	return &Orchestrator{
		queue:     queue,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		hasher:    sha256.New(),
		cfg:       cfg,
		logger:    logger,
	}
}

// RunCycle executes one crawl cycle and returns its summary. Task-level
// failures are recorded on the queue and never escalate; only storage
// failures that prevent the cycle itself from proceeding are returned.
func (o *Orchestrator) RunCycle(ctx context.Context) (crawler.RunSummary, error) {
	summary := crawler.RunSummary{StartedAt: o.clock.Now()}

	reset, err := o.queue.RecoverStale(ctx, o.cfg.StaleAfter)
	if err != nil {
		metrics.ObserveCycle("error")
		return summary, fmt.Errorf("recover stale tasks: %w", err)
	}
	metrics.AddStaleResets(reset)

	o.seed(ctx)

	urls, err := o.queue.ListClaimable(ctx)
	if err != nil {
		metrics.ObserveCycle("error")
		return summary, fmt.Errorf("list claimable tasks: %w", err)
	}

	var created, updated atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Concurrency)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			o.processTask(ctx, url, &created, &updated)
			return nil
		})
	}
	// processTask never returns an error; one bad title must not stop the rest.
	_ = g.Wait()

	summary.MoviesCreated = int(created.Load())
	summary.MoviesUpdated = int(updated.Load())
	if err := o.store.RecordRun(ctx, summary); err != nil {
		metrics.ObserveCycle("error")
		return summary, fmt.Errorf("record run: %w", err)
	}

	o.logger.Info("cycle finished",
		zap.Int("tasks", len(urls)),
		zap.Int64("stale_resets", reset),
		zap.Int("movies_created", summary.MoviesCreated),
		zap.Int("movies_updated", summary.MoviesUpdated),
	)
	metrics.ObserveCycle("ok")
	return summary, nil
}

// seed fetches the listing page and enqueues every discovered title. A
// listing failure skips seeding only; the cycle still drains whatever is
// already claimable.
func (o *Orchestrator) seed(ctx context.Context) {
	fetchStart := time.Now()
	body, err := o.fetcher.Fetch(ctx, o.cfg.ListingURL)
	metrics.ObserveFetch("listing", time.Since(fetchStart))
	if err != nil {
		o.logger.Error("listing fetch failed, skipping seeding", zap.Error(err))
		return
	}

	urls, err := o.extractor.ExtractListing(body)
	if err != nil {
		o.logger.Error("listing extraction failed, skipping seeding", zap.Error(err))
		return
	}
	o.logger.Info("discovered titles", zap.Int("count", len(urls)))

	for _, url := range urls {
		if err := o.queue.EnqueueIfAbsent(ctx, url); err != nil {
			o.logger.Error("enqueue failed", zap.String("url", url), zap.Error(err))
		}
	}
}

func (o *Orchestrator) processTask(ctx context.Context, url string, created, updated *atomic.Int64) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task panicked", zap.String("url", url), zap.Any("panic", r))
			o.failTask(ctx, url, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := o.queue.Claim(ctx, url, o.cfg.InstanceName); err != nil {
		o.logger.Error("claim failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveTask("error")
		return
	}

	fetchStart := time.Now()
	body, err := o.fetcher.Fetch(ctx, url)
	metrics.ObserveFetch("detail", time.Since(fetchStart))
	if err != nil {
		o.failTask(ctx, url, fmt.Sprintf("fetch failed: %v", err))
		return
	}

	o.snapshot(ctx, url, body)

	record, err := o.extractor.ExtractDetail(body, url)
	if err != nil {
		o.failTask(ctx, url, err.Error())
		return
	}

	outcome, err := o.store.UpsertMovie(ctx, record)
	if err != nil {
		o.failTask(ctx, url, fmt.Sprintf("store movie: %v", err))
		return
	}
	switch outcome {
	case crawler.OutcomeCreated:
		created.Add(1)
	case crawler.OutcomeUpdated:
		updated.Add(1)
	}
	metrics.ObserveMovie(outcome.String())

	if err := o.store.UpsertCredits(ctx, url, record.Cast); err != nil {
		o.failTask(ctx, url, fmt.Sprintf("store credits: %v", err))
		return
	}

	o.announce(ctx, record, outcome)

	if err := o.queue.MarkDone(ctx, url); err != nil {
		o.logger.Error("mark done failed", zap.String("url", url), zap.Error(err))
		metrics.ObserveTask("error")
		return
	}
	metrics.ObserveTask("done")
}

func (o *Orchestrator) failTask(ctx context.Context, url, reason string) {
	o.logger.Error("task failed", zap.String("url", url), zap.String("reason", reason))
	if err := o.queue.MarkFailed(ctx, url, reason); err != nil {
		o.logger.Error("mark failed errored", zap.String("url", url), zap.Error(err))
	}
	metrics.ObserveTask("failed")
}

// snapshot archives the raw page body. Best effort: a snapshot failure is a
// warning, never a task failure.
func (o *Orchestrator) snapshot(ctx context.Context, url string, body []byte) {
	if o.archive == nil {
		return
	}
	path := fmt.Sprintf("%s/%s.html", o.cfg.ArchivePrefix, o.hasher.Hash(body))
	uri, err := o.archive.PutObject(ctx, path, "text/html; charset=utf-8", body)
	if err != nil {
		o.logger.Warn("snapshot failed", zap.String("url", url), zap.Error(err))
		return
	}
	o.logger.Debug("snapshot stored", zap.String("url", url), zap.String("uri", uri))
}

func (o *Orchestrator) announce(ctx context.Context, record crawler.MovieRecord, outcome crawler.UpsertOutcome) {
	if o.publisher == nil || outcome == crawler.OutcomeUnchanged {
		return
	}
	event := crawler.ChangeEvent{
		IMDbURL:   record.IMDbURL,
		Title:     record.Title,
		Outcome:   outcome.String(),
		Timestamp: o.clock.Now(),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.EventTopic, event); err != nil {
		o.logger.Warn("publish change event failed", zap.String("url", record.IMDbURL), zap.Error(err))
	}
}
