package core

// sweeper.go runs periodic maintenance.
//
// Each cycle expires drafts that passed their TTL (the payload is cleared,
// the row is kept for session statistics) and asks every registered Purger
// to drop rows older than the retention window: consumed or expired one-time
// codes and stale rate-limit buckets. A failing task is logged and the cycle
// continues.

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes rows older than cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepTask is a named Purger.
type SweepTask struct {
	Name   string
	Purger Purger
}

// SweeperConfig holds the sweeper schedule.
type SweeperConfig struct {
	Interval  time.Duration // How often to run (default: 15m)
	Retention time.Duration // Age after which purgeable rows go (default: 24h)
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	return c
}

// StartSweeper runs one cycle immediately and then every Interval until ctx
// is cancelled. It blocks; run it in a goroutine.
func (s *Service) StartSweeper(ctx context.Context, cfg SweeperConfig, tasks ...SweepTask) {
	cfg = cfg.withDefaults()
	slog.Info("sweeper started",
		"interval", cfg.Interval.String(),
		"retention", cfg.Retention.String(),
		"tasks", len(tasks)+1,
	)

	s.Sweep(ctx, cfg, tasks...)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, cfg, tasks...)
		}
	}
}

// Sweep performs one maintenance cycle.
func (s *Service) Sweep(ctx context.Context, cfg SweeperConfig, tasks ...SweepTask) {
	cfg = cfg.withDefaults()
	start := time.Now()
	now := s.now()

	expired, err := s.stores.Drafts.ExpireDrafts(ctx, now)
	if err != nil {
		slog.Error("expire drafts failed", "error", err)
	} else if expired > 0 {
		slog.Info("expired drafts", "drafts_expired", expired)
	}

	cutoff := now.Add(-cfg.Retention)
	for _, task := range tasks {
		purged, err := task.Purger.Purge(ctx, cutoff)
		if err != nil {
			slog.Error("purge failed", "task", task.Name, "error", err)
			continue
		}
		if purged > 0 {
			slog.Info("purged rows", "task", task.Name, "rows_purged", purged)
		}
	}

	slog.Debug("sweep completed", "duration_ms", time.Since(start).Milliseconds())
}
