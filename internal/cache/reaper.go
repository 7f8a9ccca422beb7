package cache

// reaper.go reclaims single-flight locks left behind by cycles whose process
// died between acquiring and releasing.
//
// The reaper is long-running and context-aware for graceful shutdown. It logs
// progress and errors but never stops on an individual failure.

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig holds configuration for the stale lock reaper.
type ReaperConfig struct {
	StaleAfter time.Duration // Locks older than this are reclaimed (default: 15m)
	Interval   time.Duration // How often to run (default: 1m)
}

func (c ReaperConfig) withDefaults() ReaperConfig {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	return c
}

// StartReaper runs ReapOnce immediately and then every cfg.Interval until
// ctx is cancelled.
func StartReaper(ctx context.Context, locker Locker, cfg ReaperConfig) {
	cfg = cfg.withDefaults()
	slog.Info("lock reaper started",
		"stale_after", cfg.StaleAfter.String(),
		"interval", cfg.Interval.String(),
	)

	ReapOnce(ctx, locker, cfg.StaleAfter, time.Now())

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("lock reaper stopped")
			return
		case now := <-ticker.C:
			ReapOnce(ctx, locker, cfg.StaleAfter, now)
		}
	}
}

// ReapOnce removes locks acquired more than staleAfter before now.
func ReapOnce(ctx context.Context, locker Locker, staleAfter time.Duration, now time.Time) int {
	start := time.Now()

	reaped, err := locker.ReapStale(ctx, now.Add(-staleAfter))
	if err != nil {
		slog.Error("lock reap failed", "error", err, "reaped", reaped)
		return reaped
	}
	if reaped > 0 {
		slog.Warn("reclaimed stale locks",
			"reaped", reaped,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		slog.Debug("no stale locks", "duration_ms", time.Since(start).Milliseconds())
	}
	return reaped
}
