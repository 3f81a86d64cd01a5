package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/labingest/internal/core"
)

var countsDef = core.AdapterDefinition{
	Info: core.AdapterInfo{Key: "counts", Group: "Test", Label: "Counts", Table: "counts"},
	FieldSpecs: []core.FieldSpec{
		{Name: "Sample ID", Type: core.FieldText, Required: true},
		{Name: "Measured", Type: core.FieldTimestamp, Required: true},
		{Name: "Viability (%)", Type: core.FieldNumeric},
		{Name: "Passed", Type: core.FieldBool},
	},
	KeyColumns: []string{"Sample ID", "Measured"},
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()

	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(ctx, []core.AdapterDefinition{countsDef}); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return s
}

func countRecord(sample string, viability float64) core.NormalizedRecord {
	return core.NormalizedRecord{
		Table: "counts",
		Key: []core.Column{
			{Name: "sample_id", Value: sample},
			{Name: "measured", Value: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		},
		Fields: []core.Column{
			{Name: "viability_pct", Value: viability},
			{Name: "passed", Value: true},
		},
	}
}

func upsertAll(t *testing.T, s *SQLite, recs ...core.NormalizedRecord) []core.Outcome {
	t.Helper()
	var outcomes []core.Outcome
	err := s.InTx(context.Background(), func(u core.Upserter) error {
		for _, rec := range recs {
			o, err := u.Upsert(context.Background(), rec)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, o)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	return outcomes
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)

	got := upsertAll(t, s, countRecord("A", 95.5), countRecord("B", 90))
	if got[0] != core.OutcomeInserted || got[1] != core.OutcomeInserted {
		t.Errorf("first pass outcomes = %v, want inserted", got)
	}

	got = upsertAll(t, s, countRecord("A", 96.0), countRecord("B", 90))
	if got[0] != core.OutcomeUpdated || got[1] != core.OutcomeUpdated {
		t.Errorf("second pass outcomes = %v, want updated", got)
	}

	var n int
	if err := s.DB().Get(&n, `SELECT COUNT(*) FROM "counts"`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}

	var viability float64
	if err := s.DB().Get(&viability, `SELECT "viability_pct" FROM "counts" WHERE "sample_id" = 'A'`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if viability != 96.0 {
		t.Errorf("viability_pct = %v, want 96 (updated in place)", viability)
	}
}

func TestSQLite_InTxRollsBack(t *testing.T) {
	s := openTestSQLite(t)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(u core.Upserter) error {
		if _, err := u.Upsert(context.Background(), countRecord("A", 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	var pe *core.PersistError
	if !errors.As(err, &pe) || pe.Transient {
		t.Errorf("error = %#v, want permanent *core.PersistError", err)
	}

	var n int
	if err := s.DB().Get(&n, `SELECT COUNT(*) FROM "counts"`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("row count = %d, want 0 after rollback", n)
	}
}

func TestSQLite_UnknownTableIsPermanent(t *testing.T) {
	s := openTestSQLite(t)

	rec := countRecord("A", 1)
	rec.Table = "missing"
	err := s.InTx(context.Background(), func(u core.Upserter) error {
		_, err := u.Upsert(context.Background(), rec)
		return err
	})
	if err == nil {
		t.Fatal("InTx() error = nil, want error")
	}
	if core.IsTransient(err) {
		t.Errorf("IsTransient(%v) = true, want false", err)
	}
}

func TestSQLite_RecordJobAndHistory(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)
	older := core.Snapshot{
		JobID: "job-1", AdapterID: "counts", SourceDir: "/in", DestDir: "/out",
		Policy: core.PolicySkip, Status: core.StatusCompleted, TotalFiles: 2, SucceededCount: 2,
		RowsInserted: 10, StartedAt: started.Add(-time.Hour), FinishedAt: &finished,
	}
	newer := core.Snapshot{
		JobID: "job-2", AdapterID: "counts", SourceDir: "/in", DestDir: "/out", Trigger: "watch",
		Policy: core.PolicyHalt, Status: core.StatusFailed, TotalFiles: 3, FailedCount: 1,
		LastError: "parse b.csv: header not found", StartedAt: started, FinishedAt: &finished,
		Failures: []core.FileFailure{{FileName: "b.csv", Stage: core.StageParse, Reason: "header not found"}},
	}

	for _, snap := range []core.Snapshot{older, newer, newer} {
		if err := s.RecordJob(ctx, snap); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	got, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(History()) = %d, want 2", len(got))
	}
	if got[0].JobID != "job-2" {
		t.Errorf("History()[0].JobID = %q, want job-2 (newest first)", got[0].JobID)
	}
	if got[0].Status != core.StatusFailed || got[0].Trigger != "watch" || got[0].LastError == "" {
		t.Errorf("History()[0] = %+v", got[0])
	}
	if len(got[0].Failures) != 1 || got[0].Failures[0].Stage != core.StageParse {
		t.Errorf("Failures = %+v", got[0].Failures)
	}
	if got[1].FinishedAt == nil || !got[1].FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got[1].FinishedAt, finished)
	}
}

func TestIsTransientSQLite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		if got := isTransientSQLite(tt.err); got != tt.want {
			t.Errorf("%s: isTransientSQLite() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
