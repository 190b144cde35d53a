// Package main wires together the parsing service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/parselab/shop-parser/internal/api"
	"github.com/parselab/shop-parser/internal/challenge"
	"github.com/parselab/shop-parser/internal/clock/system"
	"github.com/parselab/shop-parser/internal/config"
	"github.com/parselab/shop-parser/internal/dispatcher"
	"github.com/parselab/shop-parser/internal/export"
	"github.com/parselab/shop-parser/internal/extract"
	"github.com/parselab/shop-parser/internal/fetcher/browser"
	"github.com/parselab/shop-parser/internal/fetcher/direct"
	"github.com/parselab/shop-parser/internal/id/uuid"
	"github.com/parselab/shop-parser/internal/logging"
	"github.com/parselab/shop-parser/internal/parser"
	logpublisher "github.com/parselab/shop-parser/internal/publisher/log"
	pubsubpublisher "github.com/parselab/shop-parser/internal/publisher/pubsub"
	queuememory "github.com/parselab/shop-parser/internal/queue/memory"
	"github.com/parselab/shop-parser/internal/ratelimit"
	"github.com/parselab/shop-parser/internal/session"
	"github.com/parselab/shop-parser/internal/snapshot"
	storagememory "github.com/parselab/shop-parser/internal/storage/memory"
	storagepostgres "github.com/parselab/shop-parser/internal/storage/postgres"
	"github.com/parselab/shop-parser/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskStore, productStore, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	snapshots, err := buildSnapshotStore(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}
	sink, sinkClose, err := buildEventSink(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("event sink init failed", zap.Error(err))
	}
	defer sinkClose()

	sessions := session.NewStore(session.Config{
		UserAgents: cfg.Fetch.UserAgents,
		Proxies:    cfg.Fetch.Proxies,
	})
	detector := challenge.NewDetector()
	directFetcher := direct.New(direct.Config{
		Timeout:   cfg.FetchTimeout(),
		JitterMax: time.Duration(cfg.Fetch.JitterMaxMs) * time.Millisecond,
	}, sessions, detector)

	var browserFetcher parser.Fetcher
	if cfg.Browser.Enabled {
		bf, err := browser.New(browser.Config{
			MaxParallel:       cfg.Browser.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			ScrollSettle:      time.Duration(cfg.Browser.ScrollSettle) * time.Millisecond,
		}, sessions, detector)
		if err != nil {
			logger.Warn("browser fetcher init failed", zap.Error(err))
		} else {
			defer bf.Close()
			browserFetcher = bf
		}
	}

	limiter := ratelimit.New(ratelimit.Config{DefaultInterval: cfg.DefaultRateInterval()})
	registry := extract.NewRegistry(cfg.Parser.FallbackCurrency, cfg.SiteProfiles())
	exports := export.NewRegistry()
	queue := queuememory.NewQueue(cfg.Parser.QueueDepth)
	retry := parser.NewRetryPolicy(
		cfg.Fetch.MaxAttempts,
		time.Duration(cfg.Fetch.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Fetch.BackoffMaxMs)*time.Millisecond,
	)
	clock := system.New()
	idGen := uuid.New()

	workerCfg := worker.Config{
		SnapshotPrefix:  cfg.Snapshots.Prefix,
		SnapshotEnabled: cfg.Snapshots.Enabled,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Parser.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			taskStore,
			productStore,
			snapshots,
			sink,
			limiter,
			registry,
			directFetcher,
			browserFetcher,
			retry,
			clock,
			idGen,
			workerCfg,
			logging.ForSubsystem(logger, "worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(taskStore, productStore, dispatch, registry, exports, idGen, clock, cfg, logging.ForSubsystem(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Parser.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

// buildStores selects Postgres when a DSN is configured, in-memory otherwise.
func buildStores(ctx context.Context, cfg config.Config) (parser.TaskStore, parser.ProductStore, error) {
	if cfg.DB.DSN == "" {
		tasks := storagememory.NewTaskStore()
		return tasks, storagememory.NewProductStore(tasks), nil
	}
	tasks, err := storagepostgres.NewTaskStore(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect task store: %w", err)
	}
	products, err := storagepostgres.NewProductStore(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect product store: %w", err)
	}
	return tasks, products, nil
}

func buildSnapshotStore(ctx context.Context, cfg config.Config) (parser.SnapshotStore, error) {
	if !cfg.Snapshots.Enabled {
		return nil, nil
	}
	switch cfg.Snapshots.Backend {
	case "", "local":
		return snapshot.NewLocalStore(cfg.Snapshots.BaseDir)
	case "memory":
		return snapshot.NewMemoryStore(), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return snapshot.NewGCSStore(client, cfg.Snapshots.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshots.Backend)
	}
}

// buildEventSink publishes completion events to Pub/Sub when configured and
// falls back to the logger.
func buildEventSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (parser.EventSink, func(), error) {
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		sink, err := pubsubpublisher.NewFromProject(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink.Close, nil
	}
	return logpublisher.New(logging.ForSubsystem(logger, "events")), func() {}, nil
}
