// Package store implements core.Persistence on PostgreSQL and SQLite.
//
// Each adapter writes to its own table whose natural-key columns carry a
// unique constraint; upserts conflict on that key so re-ingesting a file
// updates rows in place instead of duplicating them. Finished jobs are kept
// in the ingest_jobs table.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/labingest/internal/core"
)

// Store is a persistence backend with schema management and job history.
type Store interface {
	core.Persistence
	core.JobRecorder
	EnsureSchema(ctx context.Context, defs []core.AdapterDefinition) error
	History(ctx context.Context, limit int) ([]core.Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options configures Open.
type Options struct {
	Driver          string
	URL             string // Postgres connection string
	SQLitePath      string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		return OpenPostgres(ctx, opts)
	case DriverSQLite:
		return OpenSQLite(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// DefaultHistoryLimit bounds History when limit <= 0.
const DefaultHistoryLimit = 50

func historyLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultHistoryLimit
	}
	return limit
}

// jobArgs flattens a snapshot into recordJobSQL argument order.
func jobArgs(snap core.Snapshot) ([]any, error) {
	var failures []byte
	if len(snap.Failures) > 0 {
		b, err := json.Marshal(snap.Failures)
		if err != nil {
			return nil, fmt.Errorf("encode failures: %w", err)
		}
		failures = b
	}

	var lastError any
	if snap.LastError != "" {
		lastError = snap.LastError
	}
	var finished any
	if snap.FinishedAt != nil {
		finished = snap.FinishedAt.UTC()
	}
	var failuresArg any
	if failures != nil {
		failuresArg = string(failures)
	}

	return []any{
		snap.JobID, snap.AdapterID, snap.SourceDir, snap.DestDir, string(snap.Policy), snap.Trigger, string(snap.Status),
		snap.TotalFiles, snap.SucceededCount, snap.FailedCount, snap.RowsInserted, snap.RowsUpdated,
		lastError, failuresArg, snap.StartedAt.UTC(), finished,
	}, nil
}

func decodeFailures(raw []byte) ([]core.FileFailure, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []core.FileFailure
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}
	return out, nil
}

// persistError classifies err for the retry loop unless it already is one.
func persistError(err error, transient func(error) bool) error {
	if err == nil {
		return nil
	}
	var pe *core.PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &core.PersistError{Transient: transient(err), Err: err}
}
