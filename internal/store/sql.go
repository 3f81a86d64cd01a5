package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/labingest/internal/core"
)

// JobsTable holds one row per finished ingestion job.
const JobsTable = "ingest_jobs"

// dialect captures the differences between the supported SQL engines.
type dialect struct {
	placeholder func(n int) string // 1-based
	autoID      string
	columnType  map[core.FieldType]string
	timestamp   string
	json        string
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	autoID:      "BIGSERIAL PRIMARY KEY",
	columnType: map[core.FieldType]string{
		core.FieldText:      "TEXT",
		core.FieldEnum:      "TEXT",
		core.FieldNumeric:   "DOUBLE PRECISION",
		core.FieldDate:      "DATE",
		core.FieldTimestamp: "TIMESTAMPTZ",
		core.FieldBool:      "BOOLEAN",
	},
	timestamp: "TIMESTAMPTZ",
	json:      "JSONB",
}

// go-sqlite3 converts DATE, TIMESTAMP and BOOLEAN declared columns back to
// time.Time and bool on scan.
var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	autoID:      "INTEGER PRIMARY KEY AUTOINCREMENT",
	columnType: map[core.FieldType]string{
		core.FieldText:      "TEXT",
		core.FieldEnum:      "TEXT",
		core.FieldNumeric:   "REAL",
		core.FieldDate:      "DATE",
		core.FieldTimestamp: "TIMESTAMP",
		core.FieldBool:      "BOOLEAN",
	},
	timestamp: "TIMESTAMP",
	json:      "TEXT",
}

// quoteIdentifier safely quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// upsertSQL builds an INSERT ... ON CONFLICT statement for rec. The conflict
// target is the record's key columns, which must carry a unique constraint.
func (d dialect) upsertSQL(rec core.NormalizedRecord) (string, []any, error) {
	if rec.Table == "" {
		return "", nil, fmt.Errorf("record has no table")
	}
	if len(rec.Key) == 0 {
		return "", nil, fmt.Errorf("record for %s has no key columns", rec.Table)
	}

	names := make([]string, 0, len(rec.Key)+len(rec.Fields))
	args := make([]any, 0, len(rec.Key)+len(rec.Fields))
	keyNames := make([]string, 0, len(rec.Key))
	for _, c := range rec.Key {
		names = append(names, c.Name)
		keyNames = append(keyNames, c.Name)
		args = append(args, c.Value)
	}
	for _, c := range rec.Fields {
		names = append(names, c.Name)
		args = append(args, c.Value)
	}

	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = d.placeholder(i + 1)
	}

	sets := make([]string, 0, len(rec.Fields)+1)
	for _, c := range rec.Fields {
		col := quoteIdentifier(c.Name)
		sets = append(sets, col+" = excluded."+col)
	}
	sets = append(sets, `"updated_at" = CURRENT_TIMESTAMP`)

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdentifier(rec.Table),
		quoteAll(names),
		strings.Join(placeholders, ", "),
		quoteAll(keyNames),
		strings.Join(sets, ", "),
	)
	return q, args, nil
}

// existsSQL builds a key lookup for rec.
func (d dialect) existsSQL(rec core.NormalizedRecord) (string, []any) {
	conds := make([]string, len(rec.Key))
	args := make([]any, len(rec.Key))
	for i, c := range rec.Key {
		conds[i] = quoteIdentifier(c.Name) + " = " + d.placeholder(i+1)
		args[i] = c.Value
	}
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", quoteIdentifier(rec.Table), strings.Join(conds, " AND ")), args
}

// tableDDL returns the CREATE TABLE statement for an adapter's table.
func (d dialect) tableDDL(def core.AdapterDefinition) string {
	keys := def.KeyColumnNames()
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	cols := []string{`"id" ` + d.autoID}
	for _, spec := range def.FieldSpecs {
		col := spec.Column()
		line := quoteIdentifier(col) + " " + d.columnType[spec.Type]
		if isKey[col] {
			line += " NOT NULL"
		}
		cols = append(cols, line)
	}
	cols = append(cols,
		`"ingested_at" `+d.timestamp+" NOT NULL DEFAULT CURRENT_TIMESTAMP",
		`"updated_at" `+d.timestamp+" NOT NULL DEFAULT CURRENT_TIMESTAMP",
		"UNIQUE ("+quoteAll(keys)+")",
	)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdentifier(def.Info.Table), strings.Join(cols, ",\n\t"))
}

// jobsDDL returns the CREATE TABLE statement for job history.
func (d dialect) jobsDDL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"job_id" TEXT PRIMARY KEY,
	"adapter" TEXT NOT NULL,
	"source_dir" TEXT NOT NULL,
	"dest_dir" TEXT NOT NULL,
	"policy" TEXT NOT NULL,
	"trigger" TEXT NOT NULL DEFAULT '',
	"status" TEXT NOT NULL,
	"total_files" INTEGER NOT NULL,
	"succeeded_count" INTEGER NOT NULL,
	"failed_count" INTEGER NOT NULL,
	"rows_inserted" BIGINT NOT NULL,
	"rows_updated" BIGINT NOT NULL,
	"last_error" TEXT,
	"failures" %s,
	"started_at" %s NOT NULL,
	"finished_at" %s
)`, JobsTable, d.json, d.timestamp, d.timestamp)
}

// recordJobSQL upserts a job summary by job_id.
func (d dialect) recordJobSQL() string {
	cols := []string{
		"job_id", "adapter", "source_dir", "dest_dir", "policy", "trigger", "status",
		"total_files", "succeeded_count", "failed_count", "rows_inserted", "rows_updated",
		"last_error", "failures", "started_at", "finished_at",
	}
	placeholders := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = d.placeholder(i + 1)
		if i > 0 {
			sets = append(sets, quoteIdentifier(c)+" = excluded."+quoteIdentifier(c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (\"job_id\") DO UPDATE SET %s",
		JobsTable, quoteAll(cols), strings.Join(placeholders, ", "), strings.Join(sets, ", "))
}

const historyColumns = `"job_id", "adapter", "source_dir", "dest_dir", "policy", "trigger", "status",
	"total_files", "succeeded_count", "failed_count", "rows_inserted", "rows_updated",
	"last_error", "failures", "started_at", "finished_at"`

func (d dialect) historySQL() string {
	return fmt.Sprintf(`SELECT %s FROM %s ORDER BY "started_at" DESC LIMIT %s`, historyColumns, JobsTable, d.placeholder(1))
}
