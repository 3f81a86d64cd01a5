package core

// scheduler.go triggers ingestion for configured watch folders.
//
// Instrument PCs drop exports into shared inboxes throughout the day. The
// scheduler starts a job for every watch folder on each tick; a folder whose
// previous job is still running is skipped until the next tick. Individual
// failures are logged and never stop the scheduler.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultWatchInterval is used when WatchConfig.Interval is zero.
const DefaultWatchInterval = 5 * time.Minute

// WatchFolder pairs an inbox with its archive and adapter.
type WatchFolder struct {
	Name      string
	AdapterID string
	SourceDir string
	DestDir   string
}

// WatchConfig holds configuration for the watch scheduler.
type WatchConfig struct {
	Folders  []WatchFolder
	Interval time.Duration
}

// StartWatchScheduler runs one cycle immediately, then every Interval,
// until ctx is cancelled.
func (s *Service) StartWatchScheduler(ctx context.Context, cfg WatchConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchInterval
	}

	slog.Info("watch scheduler started",
		"folders", len(cfg.Folders),
		"interval", cfg.Interval.String(),
	)

	s.runWatchCycle(ctx, cfg.Folders)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch scheduler stopped")
			return
		case <-ticker.C:
			s.runWatchCycle(ctx, cfg.Folders)
		}
	}
}

// runWatchCycle starts a job for every folder and returns the ids it started.
func (s *Service) runWatchCycle(ctx context.Context, folders []WatchFolder) []string {
	var started []string

	for _, f := range folders {
		if ctx.Err() != nil {
			return started
		}

		log := slog.With("watch", f.Name, "adapter", f.AdapterID, "source_dir", f.SourceDir)

		jobID, err := s.Start(ContextWithTrigger(ctx, TriggerWatch), StartRequest{
			SourceDir: f.SourceDir,
			DestDir:   f.DestDir,
			AdapterID: f.AdapterID,
		})
		switch {
		case err == nil:
			started = append(started, jobID)
			log.Debug("watch job started", "job_id", jobID)
		case errors.Is(err, ErrJobInProgress):
			log.Debug("previous job still running, skipping")
		case errors.Is(err, ErrTooManyJobs):
			log.Info("job limit reached, retrying next tick")
		default:
			log.Warn("watch job not started", "error", err)
		}
	}

	return started
}
