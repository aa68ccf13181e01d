package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meshsocial/feedserve/internal/config"
	"github.com/meshsocial/feedserve/internal/eventstream"
	"github.com/meshsocial/feedserve/internal/feed"
	"github.com/meshsocial/feedserve/internal/httpserver"
	"github.com/meshsocial/feedserve/internal/redisfeed"
	"github.com/meshsocial/feedserve/internal/sqlite"
	"github.com/meshsocial/feedserve/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Durable store (posts, follows, stream cursors)
	store, err := sqlite.NewStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("connected to database", "path", cfg.DatabasePath)

	// Ordered feed index. The client's lifecycle lives here, not in the
	// index type.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The reader degrades to the durable store while the index is
		// unreachable, so startup proceeds.
		logger.Warn("index store unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		logger.Info("connected to index store", "addr", cfg.RedisAddr)
	}
	pingCancel()

	index := redisfeed.NewIndex(rdb, redisfeed.Options{
		TTL:       cfg.FeedTTL,
		ChunkSize: cfg.BatchChunkSize,
	})

	// Feed engine
	rebuilder := feed.NewRebuilder(index, store, store, cfg.MaxFeedSize, logger)
	reader := feed.NewReader(index, store, store, rebuilder, feed.ReaderOptions{
		MaxFeedSize: cfg.MaxFeedSize,
	}, logger)
	distributor := feed.NewDistributor(index, store, store, rebuilder, feed.DistributorOptions{
		MaxFeedSize:       cfg.MaxFeedSize,
		FanoutLimit:       cfg.FanoutLimit,
		BackfillLimit:     cfg.BackfillLimit,
		FanoutBudget:      cfg.FanoutBudget,
		ReconcileInterval: cfg.ReconcileInterval,
		ReconcileMaxUsers: cfg.ReconcileMaxUsers,
	}, logger)

	runner := tasks.NewRunner(cfg.TaskWorkers, cfg.TaskQueueSize, logger)
	ingestor := feed.NewIngestor(store, distributor, runner, logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the lifecycle-event subscriber in the background
	if cfg.EventStreamURL != "" {
		subscriber := eventstream.NewSubscriber(cfg.EventStreamURL, ingestor, store, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("event subscriber exited with error", "error", err)
			}
		}()
	} else {
		logger.Warn("no event stream configured, serving reads and rebuilds only")
	}

	// Start the bounded periodic reconciliation of failed fanout writes
	go distributor.StartReconciler(ctx)

	// Start the HTTP server
	server := httpserver.NewServer(cfg.Port, reader, rebuilder, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
	runner.Close()

	return nil
}
