package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forager/internal/config"
	"forager/internal/domain"
)

type SubscriptionLoader func() (*config.Subscriptions, error)

// Cycle is the unit of scheduled work: reconcile the subscriptions file,
// then fetch every active feed.
type Cycle struct {
	load       SubscriptionLoader
	reconciler *ReconcileService
	fetcher    *FetchService
	logger     *slog.Logger
}

func NewCycle(load SubscriptionLoader, reconciler *ReconcileService, fetcher *FetchService, logger *slog.Logger) *Cycle {
	return &Cycle{
		load:       load,
		reconciler: reconciler,
		fetcher:    fetcher,
		logger:     logger.With("component", "cycle"),
	}
}

// Sync runs one cycle. An unreadable or invalid subscriptions file skips the
// reconcile step but feeds already in storage are still fetched.
func (c *Cycle) Sync(ctx context.Context) (*domain.CycleStats, error) {
	start := time.Now()
	stats := &domain.CycleStats{}

	subs, err := c.load()
	if err != nil {
		c.logger.Error("failed to load subscriptions, skipping reconcile", "error", err)
	} else {
		stats.Sync, err = c.reconciler.Sync(ctx, subs)
		if err != nil {
			c.logger.Error("subscription sync failed", "error", err)
		}
	}

	batch, err := c.fetcher.ProcessActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch feeds: %w", err)
	}

	stats.Feeds = len(batch)
	stats.Inserted, stats.Failed = batch.Totals()
	stats.Duration = time.Since(start)

	c.logger.Info("cycle completed",
		"feeds", stats.Feeds,
		"new_articles", stats.Inserted,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)

	return stats, nil
}
