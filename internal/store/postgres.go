package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/labingest/internal/core"
)

// Postgres stores records in PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres parses opts.URL, applies pool sizing and pings the server.
func OpenPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InTx runs fn in one transaction. All upserts made by fn commit together.
func (p *Postgres) InTx(ctx context.Context, fn func(core.Upserter) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return persistError(fmt.Errorf("begin transaction: %w", err), isTransientPg)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&pgUpserter{tx: tx}); err != nil {
		return persistError(err, isTransientPg)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistError(fmt.Errorf("commit transaction: %w", err), isTransientPg)
	}
	return nil
}

type pgUpserter struct {
	tx pgx.Tx
}

// Upsert inserts rec or updates the row with the same natural key.
// xmax is zero only for a freshly inserted tuple.
func (u *pgUpserter) Upsert(ctx context.Context, rec core.NormalizedRecord) (core.Outcome, error) {
	q, args, err := postgresDialect.upsertSQL(rec)
	if err != nil {
		return 0, &core.PersistError{Err: err}
	}

	var inserted bool
	if err := u.tx.QueryRow(ctx, q+" RETURNING (xmax = 0)", args...).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("upsert %s [%s]: %w", rec.Table, rec.NaturalKey(), err)
	}
	if inserted {
		return core.OutcomeInserted, nil
	}
	return core.OutcomeUpdated, nil
}

// EnsureSchema creates the job history table and one table per adapter.
func (p *Postgres) EnsureSchema(ctx context.Context, defs []core.AdapterDefinition) error {
	stmts := []string{postgresDialect.jobsDDL()}
	for _, def := range defs {
		stmts = append(stmts, postgresDialect.tableDDL(def))
	}

	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RecordJob upserts a job summary into ingest_jobs.
func (p *Postgres) RecordJob(ctx context.Context, snap core.Snapshot) error {
	args, err := jobArgs(snap)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, postgresDialect.recordJobSQL(), args...); err != nil {
		return fmt.Errorf("record job %s: %w", snap.JobID, err)
	}
	return nil
}

// History returns the most recent job summaries, newest first.
func (p *Postgres) History(ctx context.Context, limit int) ([]core.Snapshot, error) {
	rows, err := p.pool.Query(ctx, postgresDialect.historySQL(), historyLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		var (
			snap      core.Snapshot
			policy    string
			status    string
			lastError pgtype.Text
			failures  []byte
			started   pgtype.Timestamptz
			finished  pgtype.Timestamptz
		)
		if err := rows.Scan(
			&snap.JobID, &snap.AdapterID, &snap.SourceDir, &snap.DestDir, &policy, &snap.Trigger, &status,
			&snap.TotalFiles, &snap.SucceededCount, &snap.FailedCount, &snap.RowsInserted, &snap.RowsUpdated,
			&lastError, &failures, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		snap.Policy = core.ErrorPolicy(policy)
		snap.Status = core.JobStatus(status)
		snap.CurrentIndex = snap.TotalFiles
		if lastError.Valid {
			snap.LastError = lastError.String
		}
		if started.Valid {
			snap.StartedAt = started.Time.UTC()
		}
		if finished.Valid {
			t := finished.Time.UTC()
			snap.FinishedAt = &t
		}
		if snap.Failures, err = decodeFailures(failures); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Ping verifies the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// isTransientPg reports whether a failed transaction is worth retrying:
// connection loss, serialization failures, deadlocks, resource exhaustion
// and operator intervention. Constraint and syntax errors are permanent.
func isTransientPg(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return false
		}
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57":
			// 57014 is a statement cancelled by our own context.
			return pgErr.Code != "57014"
		}
		return false
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
