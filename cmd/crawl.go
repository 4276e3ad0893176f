package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moviefeed/release-crawler/internal/api"
	gcsarchive "github.com/moviefeed/release-crawler/internal/archive/gcs"
	localarchive "github.com/moviefeed/release-crawler/internal/archive/local"
	"github.com/moviefeed/release-crawler/internal/clock/system"
	"github.com/moviefeed/release-crawler/internal/config"
	"github.com/moviefeed/release-crawler/internal/crawler"
	"github.com/moviefeed/release-crawler/internal/database"
	"github.com/moviefeed/release-crawler/internal/extractor/imdb"
	collyfetcher "github.com/moviefeed/release-crawler/internal/fetcher/colly"
	"github.com/moviefeed/release-crawler/internal/logging"
	"github.com/moviefeed/release-crawler/internal/orchestrator"
	pubsubpublisher "github.com/moviefeed/release-crawler/internal/publisher/pubsub"
	pgqueue "github.com/moviefeed/release-crawler/internal/queue/postgres"
	pgstore "github.com/moviefeed/release-crawler/internal/store/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs crawl cycles against the shared task queue",
		Long: `Runs one crawl cycle: recover stale tasks, seed new titles from the
release calendar, then fetch, extract and persist every claimable title.
With --loop the cycle repeats on the configured interval and a health and
metrics server is exposed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), loop)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "run cycles continuously on the configured interval")
	return cmd
}

func runCrawl(ctx context.Context, loop bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Service:     "release-crawler",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	instance := cfg.Crawler.InstanceName
	if instance == "" {
		instance = "crawler-" + strings.Split(uuid.NewString(), "-")[0]
	}

	clk := system.New()
	queue := pgqueue.NewTaskQueue(pool, clk, logger)
	store := pgstore.NewCatalogStore(pool, logger)
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	extractor := imdb.New(cfg.Crawler.BaseURL, clk)

	archive, closeArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	o := orchestrator.New(queue, store, fetcher, extractor, archive, publisher, clk,
		orchestrator.Config{
			ListingURL:    cfg.Crawler.ListingURL,
			InstanceName:  instance,
			Concurrency:   cfg.Crawler.Concurrency,
			StaleAfter:    cfg.StaleAfter(),
			ArchivePrefix: cfg.Archive.Prefix,
			EventTopic:    cfg.PubSub.TopicName,
		},
		logger.With(zap.String("instance", instance)),
	)

	if !loop {
		_, err := o.RunCycle(ctx)
		return err
	}

	return runLoop(ctx, o, pool, instance, cfg, logger)
}

// runLoop repeats crawl cycles until the context is canceled, serving health
// and metrics endpoints on the side.
func runLoop(
	ctx context.Context,
	o *orchestrator.Orchestrator,
	db api.Pinger,
	instance string,
	cfg config.Config,
	logger *zap.Logger,
) error {
	srv := api.NewServer(db, instance, logger)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	for {
		summary, err := o.RunCycle(ctx)
		srv.RecordCycle(summary, err)
		if err != nil {
			logger.Error("cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
		}
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (crawler.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Archive.Provider {
	case "":
		return nil, noop, nil
	case "local":
		store, err := localarchive.New(localarchive.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("init local archive: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, func(), error) {
	noop := func() {}
	if cfg.PubSub.TopicName == "" {
		return nil, noop, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, noop, fmt.Errorf("init pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	closer := func() {
		topic.Stop()
		_ = client.Close()
	}
	return pubsubpublisher.New(topic), closer, nil
}
