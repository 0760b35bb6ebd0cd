package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"animetrack/internal/config"
	"animetrack/internal/enrichment"
	"animetrack/internal/logger"
	"animetrack/internal/microservices/http-api/repository"
	"animetrack/internal/microservices/http-api/service"
	"animetrack/internal/search"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := repository.OpenStore(cfg, logger)
	if err != nil {
		logger.Error("store_open_failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	source, err := search.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("metadata_setup_failed", "error", err)
		os.Exit(1)
	}
	if source == nil {
		logger.Error("metadata_setup_failed", "error", "no metadata provider enabled")
		os.Exit(1)
	}

	collection := service.NewCollectionService(store.Collection,
		service.WithMetadata(source),
		service.WithLogger(logger),
	)
	backfiller := enrichment.NewBackfiller(collection, enrichment.Config{
		Workers:   cfg.BackfillWorkers,
		BatchSize: cfg.BackfillBatchSize,
		Interval:  cfg.BackfillInterval,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received_shutdown_signal")
		cancel()
	}()

	logger.Info("backfill_started",
		"store", cfg.StoreDriver,
		"workers", cfg.BackfillWorkers,
		"interval", cfg.BackfillInterval,
	)
	if err := backfiller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("backfill_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("backfill_stopped")
}
