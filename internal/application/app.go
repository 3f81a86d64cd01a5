// Package application wires configuration, storage and the ingestion
// service together for the server and CLI entry points.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/JonMunkholm/labingest/internal/adapters" // Register all instrument adapters
	"github.com/JonMunkholm/labingest/internal/config"
	"github.com/JonMunkholm/labingest/internal/core"
	"github.com/JonMunkholm/labingest/internal/store"
)

// App is a ready-to-use ingestion stack.
type App struct {
	Config   *config.Config
	Profiles *config.Profiles
	Store    store.Store
	Service  *core.Service
}

// New opens the store, creates missing tables when auto-migrate is on, and
// builds the service. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	profiles, err := config.LoadProfiles(cfg.Ingest.ProfilesFile)
	if err != nil {
		return nil, err
	}
	if err := CheckProfiles(profiles); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, StoreOptions(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	if cfg.Store.AutoMigrate {
		if err := st.EnsureSchema(ctx, core.All()); err != nil {
			st.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	slog.Info("adapters registered",
		"count", core.AdapterCount(),
		"groups", len(core.Groups()),
	)

	return &App{
		Config:   cfg,
		Profiles: profiles,
		Store:    st,
		Service:  core.NewService(st, ServiceOptions(cfg.Ingest, profiles)),
	}, nil
}

// Close stops the service, waiting up to ctx for running jobs to reach a
// file boundary, then closes the store.
func (a *App) Close(ctx context.Context) error {
	err := a.Service.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("jobs did not finish before shutdown deadline")
	}
	return errors.Join(err, a.Store.Close())
}

// WatchConfig converts the profiles' folders into scheduler configuration.
// WATCH_INTERVAL applies unless the profiles file sets its own interval.
func (a *App) WatchConfig() core.WatchConfig {
	return WatchConfig(a.Profiles, a.Config.Watch.Interval)
}

// WatchConfig converts profile folders into scheduler configuration.
func WatchConfig(p *config.Profiles, interval time.Duration) core.WatchConfig {
	wc := core.WatchConfig{Interval: interval}
	if p.Interval > 0 {
		wc.Interval = p.Interval
	}
	for _, f := range p.Folders {
		wc.Folders = append(wc.Folders, core.WatchFolder{
			Name:      f.Name,
			AdapterID: f.Adapter,
			SourceDir: f.Source,
			DestDir:   f.Dest,
		})
	}
	return wc
}

// StoreOptions maps store configuration to store.Options.
func StoreOptions(c config.StoreConfig) store.Options {
	return store.Options{
		Driver:          c.Driver,
		URL:             c.URL,
		SQLitePath:      c.SQLitePath,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
	}
}

// ServiceOptions maps ingest configuration and filter overrides to core.Options.
func ServiceOptions(c config.IngestConfig, p *config.Profiles) core.Options {
	return core.Options{
		Policy:            core.ParsePolicy(c.ErrorPolicy),
		MaxConcurrentJobs: c.MaxConcurrentJobs,
		MaxFileSize:       c.MaxFileSize,
		FileTimeout:       c.FileTimeout,
		JobRetention:      c.JobRetention,
		Retry: core.RetryPolicy{
			MaxRetries:      c.PersistRetries,
			InitialInterval: c.RetryInitialInterval,
			MaxInterval:     c.RetryMaxInterval,
		},
		Filters: Filters(p),
	}
}

// Filters merges profile overrides onto the registered adapter filters.
// A nil override list keeps the registered value.
func Filters(p *config.Profiles) map[string]core.ScanFilter {
	if p == nil || len(p.Overrides) == 0 {
		return nil
	}
	filters := make(map[string]core.ScanFilter, len(p.Overrides))
	for key, o := range p.Overrides {
		def, ok := core.Get(key)
		if !ok {
			continue
		}
		f := core.FilterFor(def)
		if o.Extensions != nil {
			f.Extensions = o.Extensions
		}
		if o.Exclude != nil {
			f.ExcludePatterns = o.Exclude
		}
		filters[key] = f
	}
	return filters
}

// CheckProfiles reports folders and overrides naming unregistered adapters.
func CheckProfiles(p *config.Profiles) error {
	var errs []error
	for _, f := range p.Folders {
		if _, ok := core.Get(f.Adapter); !ok {
			errs = append(errs, fmt.Errorf("profile %s: %w: %s", f.Name, core.ErrUnknownAdapter, f.Adapter))
		}
	}
	for key := range p.Overrides {
		if _, ok := core.Get(key); !ok {
			errs = append(errs, fmt.Errorf("override %s: %w", key, core.ErrUnknownAdapter))
		}
	}
	return errors.Join(errs...)
}
