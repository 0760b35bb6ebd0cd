// Package enrichment fills in metadata snapshots that were not captured
// when collection items were saved.
package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/service"
)

// Source is the slice of CollectionService the backfill needs.
type Source interface {
	ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error)
	RefreshMetadata(ctx context.Context, itemID int64) (*models.CollectionItem, error)
}

type Config struct {
	Workers   int
	BatchSize int
	// Interval between passes; zero makes Run do a single pass.
	Interval time.Duration
}

// Stats counts the outcome of one pass.
type Stats struct {
	Scanned int64
	Filled  int64
	// Skipped items are unknown upstream or were removed mid-pass.
	Skipped int64
	Failed  int64
}

type Backfiller struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

func NewBackfiller(source Source, cfg Config, logger *slog.Logger) *Backfiller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = service.DefaultListLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{source: source, cfg: cfg, logger: logger}
}

// Run performs a pass now and then one per Interval until ctx is done.
// Errors from individual passes are logged; only a single-pass run returns
// them.
func (b *Backfiller) Run(ctx context.Context) error {
	if b.cfg.Interval <= 0 {
		_, err := b.RunOnce(ctx)
		return err
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := b.RunOnce(ctx); err != nil && ctx.Err() == nil {
			b.logger.Error("backfill_pass_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce walks every item without a snapshot once, in id order.
func (b *Backfiller) RunOnce(ctx context.Context) (Stats, error) {
	pool := NewWorkerPool(ctx, b.cfg.Workers, b.logger)
	pool.Start()

	var (
		stats                   Stats
		filled, skipped, failed atomic.Int64
		afterID                 int64
		passErr                 error
	)
	started := time.Now()

scan:
	for {
		if err := ctx.Err(); err != nil {
			passErr = err
			break
		}
		items, err := b.source.ListMissingMetadata(ctx, afterID, b.cfg.BatchSize)
		if err != nil {
			passErr = err
			break
		}

		for _, item := range items {
			itemID := item.ID
			err := pool.Submit(func(ctx context.Context) error {
				_, err := b.source.RefreshMetadata(ctx, itemID)
				switch {
				case err == nil:
					filled.Add(1)
					return nil
				case errors.Is(err, service.ErrAnimeNotFound), errors.Is(err, service.ErrNotFound):
					skipped.Add(1)
					return nil
				default:
					failed.Add(1)
					return err
				}
			})
			if err != nil {
				passErr = ctx.Err()
				if passErr == nil {
					passErr = err
				}
				break scan
			}
			stats.Scanned++
		}

		if len(items) < b.cfg.BatchSize {
			break
		}
		afterID = items[len(items)-1].ID
	}

	pool.Wait()

	stats.Filled = filled.Load()
	stats.Skipped = skipped.Load()
	stats.Failed = failed.Load()

	b.logger.Info("backfill_pass_finished",
		"scanned", stats.Scanned,
		"filled", stats.Filled,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", time.Since(started),
	)
	return stats, passErr
}
