package core

// scheduler.go runs Poll on a fixed interval.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed poll is logged and the next tick polls again; the cache gate keeps
// fresh resources from being fetched twice.

import (
	"context"
	"log/slog"
	"time"
)

// SchedulerConfig holds configuration for the poll scheduler.
type SchedulerConfig struct {
	Interval time.Duration // How often to poll (default: 1m)
}

// StartPollScheduler polls immediately, then every cfg.Interval, until ctx
// is cancelled.
func (s *Service) StartPollScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	slog.Info("poll scheduler started", "interval", cfg.Interval.String())

	s.runPollJob(ctx)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			s.runPollJob(ctx)
		}
	}
}

// runPollJob performs one poll.
func (s *Service) runPollJob(ctx context.Context) {
	start := time.Now()
	summary, err := s.Poll(ctx)
	if err != nil {
		slog.Error("poll failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	slog.Debug("poll job completed",
		"cycle_id", summary.CycleID,
		"jobs", summary.Jobs,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
