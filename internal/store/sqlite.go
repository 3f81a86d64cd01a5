package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/labingest/internal/core"
)

// SQLite stores records in a local database file. It serves bench PCs that
// ingest without a network database.
type SQLite struct {
	db *sqlx.DB
}

// OpenSQLite opens path in WAL mode with a busy timeout.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// InTx runs fn in one transaction. All upserts made by fn commit together.
func (s *SQLite) InTx(ctx context.Context, fn func(core.Upserter) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistError(fmt.Errorf("begin transaction: %w", err), isTransientSQLite)
	}
	defer tx.Rollback() // No-op if already committed

	if err := fn(&sqliteUpserter{tx: tx}); err != nil {
		return persistError(err, isTransientSQLite)
	}

	if err := tx.Commit(); err != nil {
		return persistError(fmt.Errorf("commit transaction: %w", err), isTransientSQLite)
	}
	return nil
}

type sqliteUpserter struct {
	tx *sqlx.Tx
}

// Upsert looks the key up first; SQLite has no cheap way to tell an insert
// from an update after ON CONFLICT.
func (u *sqliteUpserter) Upsert(ctx context.Context, rec core.NormalizedRecord) (core.Outcome, error) {
	q, args, err := sqliteDialect.upsertSQL(rec)
	if err != nil {
		return 0, &core.PersistError{Err: err}
	}

	outcome := core.OutcomeUpdated
	existsQ, existsArgs := sqliteDialect.existsSQL(rec)
	var one int
	switch err := u.tx.GetContext(ctx, &one, existsQ, existsArgs...); {
	case errors.Is(err, sql.ErrNoRows):
		outcome = core.OutcomeInserted
	case err != nil:
		return 0, fmt.Errorf("lookup %s [%s]: %w", rec.Table, rec.NaturalKey(), err)
	}

	if _, err := u.tx.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("upsert %s [%s]: %w", rec.Table, rec.NaturalKey(), err)
	}
	return outcome, nil
}

// EnsureSchema creates the job history table and one table per adapter.
func (s *SQLite) EnsureSchema(ctx context.Context, defs []core.AdapterDefinition) error {
	stmts := []string{sqliteDialect.jobsDDL()}
	for _, def := range defs {
		stmts = append(stmts, sqliteDialect.tableDDL(def))
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordJob upserts a job summary into ingest_jobs.
func (s *SQLite) RecordJob(ctx context.Context, snap core.Snapshot) error {
	args, err := jobArgs(snap)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteDialect.recordJobSQL(), args...); err != nil {
		return fmt.Errorf("record job %s: %w", snap.JobID, err)
	}
	return nil
}

type jobRow struct {
	JobID          string         `db:"job_id"`
	Adapter        string         `db:"adapter"`
	SourceDir      string         `db:"source_dir"`
	DestDir        string         `db:"dest_dir"`
	Policy         string         `db:"policy"`
	Trigger        string         `db:"trigger"`
	Status         string         `db:"status"`
	TotalFiles     int            `db:"total_files"`
	SucceededCount int            `db:"succeeded_count"`
	FailedCount    int            `db:"failed_count"`
	RowsInserted   int            `db:"rows_inserted"`
	RowsUpdated    int            `db:"rows_updated"`
	LastError      sql.NullString `db:"last_error"`
	Failures       sql.NullString `db:"failures"`
	StartedAt      time.Time      `db:"started_at"`
	FinishedAt     sql.NullTime   `db:"finished_at"`
}

// History returns the most recent job summaries, newest first.
func (s *SQLite) History(ctx context.Context, limit int) ([]core.Snapshot, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, sqliteDialect.historySQL(), historyLimit(limit)); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]core.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap := core.Snapshot{
			JobID:          r.JobID,
			AdapterID:      r.Adapter,
			SourceDir:      r.SourceDir,
			DestDir:        r.DestDir,
			Policy:         core.ErrorPolicy(r.Policy),
			Trigger:        r.Trigger,
			Status:         core.JobStatus(r.Status),
			TotalFiles:     r.TotalFiles,
			CurrentIndex:   r.TotalFiles,
			SucceededCount: r.SucceededCount,
			FailedCount:    r.FailedCount,
			RowsInserted:   r.RowsInserted,
			RowsUpdated:    r.RowsUpdated,
			LastError:      r.LastError.String,
			StartedAt:      r.StartedAt.UTC(),
		}
		if r.FinishedAt.Valid {
			t := r.FinishedAt.Time.UTC()
			snap.FinishedAt = &t
		}
		var err error
		if snap.Failures, err = decodeFailures([]byte(r.Failures.String)); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Ping verifies the database file is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests and maintenance commands.
func (s *SQLite) DB() *sqlx.DB {
	return s.db
}

// isTransientSQLite reports lock contention, which clears once the other
// writer commits.
func isTransientSQLite(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
