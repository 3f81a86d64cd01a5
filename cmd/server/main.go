package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/labingest/internal/application"
	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/logging"
	"github.com/JonMunkholm/labingest/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	closeLog := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closeLog()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"error_policy", cfg.Ingest.ErrorPolicy,
		"max_concurrent_jobs", cfg.Ingest.MaxConcurrentJobs,
		"watch_enabled", cfg.Watch.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	app, err := application.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(app.Service, app.Store, cfg)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	if cfg.Watch.Enabled {
		wc := app.WatchConfig()
		if len(wc.Folders) == 0 {
			slog.Warn("watch scheduler enabled but no folders configured", "profiles", cfg.Ingest.ProfilesFile)
		} else {
			go app.Service.StartWatchScheduler(watchCtx, wc)
		}
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		stopWatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Jobs stop first so their event streams close before the server drains.
		status := app.Service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for jobs to reach a file boundary", "active", status.Active)
		}
		if err := app.Service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("jobs did not finish in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := app.Store.Close(); err != nil {
			slog.Error("close store", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
