package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/core"
	"github.com/JonMunkholm/evesync/internal/web"
)

func newServeCommand() *cobra.Command {
	var noPoll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the poll scheduler and the lock reaper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return serve(ctx, a, !noPoll)
			})
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "Serve the API without the poll scheduler")
	return cmd
}

func serve(ctx context.Context, a *app, poll bool) error {
	cfg := a.cfg
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"lock_backend", cfg.Lock.Backend,
		"poll_enabled", cfg.Poll.Enabled && poll,
		"poll_concurrency", cfg.Poll.Concurrency,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Info("endpoints registered", "count", len(core.All()))

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background jobs stop when the signal context is cancelled.
	if cfg.Poll.Enabled && poll {
		go a.service.StartPollScheduler(sigCtx, core.SchedulerConfig{Interval: cfg.Poll.Interval})
	}
	go cache.StartReaper(sigCtx, a.locker, cache.ReaperConfig{
		StaleAfter: cfg.Lock.StaleAfter,
		Interval:   cfg.Lock.ReapInterval,
	})

	server := web.NewServer(a.service, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := a.service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for cycles to complete", "active", status.Active)
		if err := a.service.Limiter().WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("cycles did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
