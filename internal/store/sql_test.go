package store

import (
	"strings"
	"testing"

	"github.com/JonMunkholm/labingest/internal/core"
)

func TestUpsertSQL(t *testing.T) {
	rec := core.NormalizedRecord{
		Table:  "vicell_counts",
		Key:    []core.Column{{Name: "sample_id", Value: "A"}, {Name: "analysis_time", Value: nil}},
		Fields: []core.Column{{Name: "viability_pct", Value: 95.0}},
	}

	q, args, err := postgresDialect.upsertSQL(rec)
	if err != nil {
		t.Fatalf("upsertSQL() error = %v", err)
	}
	want := `INSERT INTO "vicell_counts" ("sample_id", "analysis_time", "viability_pct") VALUES ($1, $2, $3) ` +
		`ON CONFLICT ("sample_id", "analysis_time") DO UPDATE SET "viability_pct" = excluded."viability_pct", "updated_at" = CURRENT_TIMESTAMP`
	if q != want {
		t.Errorf("upsertSQL() =\n%s\nwant\n%s", q, want)
	}
	if len(args) != 3 || args[0] != "A" || args[2] != 95.0 {
		t.Errorf("args = %v", args)
	}

	q, _, _ = sqliteDialect.upsertSQL(rec)
	if !strings.Contains(q, "VALUES (?, ?, ?)") {
		t.Errorf("sqlite upsertSQL() = %s, want ? placeholders", q)
	}
}

func TestUpsertSQL_Errors(t *testing.T) {
	tests := []struct {
		name string
		rec  core.NormalizedRecord
	}{
		{"no table", core.NormalizedRecord{Key: []core.Column{{Name: "id", Value: 1}}}},
		{"no key", core.NormalizedRecord{Table: "t"}},
	}
	for _, tt := range tests {
		if _, _, err := postgresDialect.upsertSQL(tt.rec); err == nil {
			t.Errorf("%s: upsertSQL() error = nil, want error", tt.name)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"samples", `"samples"`},
		{`we"ird`, `"we""ird"`},
		{`x"; DROP TABLE t; --`, `"x""; DROP TABLE t; --"`},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.in); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTableDDL(t *testing.T) {
	ddl := postgresDialect.tableDDL(countsDef)

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "counts"`,
		`"sample_id" TEXT NOT NULL`,
		`"measured" TIMESTAMPTZ NOT NULL`,
		`"viability_pct" DOUBLE PRECISION,`,
		`"passed" BOOLEAN,`,
		`UNIQUE ("sample_id", "measured")`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("tableDDL() missing %q:\n%s", want, ddl)
		}
	}

	if ddl := sqliteDialect.tableDDL(countsDef); !strings.Contains(ddl, "INTEGER PRIMARY KEY AUTOINCREMENT") {
		t.Errorf("sqlite tableDDL() = %s", ddl)
	}
}
