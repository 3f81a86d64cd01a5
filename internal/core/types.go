// Package core provides the ingestion engine for instrument exports.
// This package has no UI or database dependencies and can be driven by any trigger.
package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType represents the expected data type for an exported column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldTimestamp
	FieldNumeric
	FieldBool
)

// FieldSpec describes a single column of an instrument export.
type FieldSpec struct {
	Name       string              // Column header as written by the instrument
	Aliases    []string            // Alternate headers seen across firmware versions
	DBColumn   string              // Database column name (derived from Name if empty)
	Type       FieldType           // Expected data type
	Required   bool                // Column must exist in the header
	EnumValues []string            // Valid values for FieldEnum
	Normalizer func(string) string // Optional transformation applied before conversion
}

// Column returns the database column name for the field.
func (f FieldSpec) Column() string {
	if f.DBColumn != "" {
		return f.DBColumn
	}
	return toDBColumnName(f.Name)
}

// Column is one named value of a normalized record.
type Column struct {
	Name  string
	Value any
}

// NormalizedRecord is one parsed row. Key holds the natural-key columns in
// declaration order; Fields holds the payload columns.
type NormalizedRecord struct {
	Table  string
	Key    []Column
	Fields []Column
}

// NaturalKey returns the key values joined with "|".
func (r NormalizedRecord) NaturalKey() string {
	parts := make([]string, len(r.Key))
	for i, c := range r.Key {
		parts[i] = formatKeyValue(c.Value)
	}
	return strings.Join(parts, "|")
}

func formatKeyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Outcome reports what an upsert did to the store.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeInserted {
		return "inserted"
	}
	return "updated"
}

// FormatAdapter turns one raw file into normalized records.
// Parse must be pure: identical bytes always yield identical records.
type FormatAdapter interface {
	Parse(raw []byte) ([]NormalizedRecord, error)
}

// AdapterFunc adapts a plain function to FormatAdapter.
type AdapterFunc func(raw []byte) ([]NormalizedRecord, error)

// Parse calls f(raw).
func (f AdapterFunc) Parse(raw []byte) ([]NormalizedRecord, error) { return f(raw) }

// Upserter applies records inside one persistence unit.
type Upserter interface {
	Upsert(ctx context.Context, rec NormalizedRecord) (Outcome, error)
}

// Persistence is the durable store. InTx runs fn inside one all-or-nothing
// unit: every upsert made by fn commits together or not at all.
// Re-applying the same record must never create a duplicate.
type Persistence interface {
	InTx(ctx context.Context, fn func(Upserter) error) error
}

// JobRecorder is implemented by stores that keep job history.
type JobRecorder interface {
	RecordJob(ctx context.Context, snap Snapshot) error
}

// ErrorPolicy decides what a per-file failure does to the run.
type ErrorPolicy string

const (
	// PolicySkip records the failure and continues with the next file.
	PolicySkip ErrorPolicy = "skip"
	// PolicyHalt stops the run with StatusFailed on the first file failure.
	PolicyHalt ErrorPolicy = "halt"
)

// ParsePolicy converts a config string to an ErrorPolicy, defaulting to skip.
func ParsePolicy(s string) ErrorPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(PolicyHalt)) {
		return PolicyHalt
	}
	return PolicySkip
}

// JobStatus is the state of an ingestion job.
type JobStatus string

const (
	StatusIdle       JobStatus = "idle"
	StatusRunning    JobStatus = "running"
	StatusCancelling JobStatus = "cancelling"
	StatusCancelled  JobStatus = "cancelled"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// FileStage names the pipeline step a file failed in.
type FileStage string

const (
	StageRead    FileStage = "read"
	StageParse   FileStage = "parse"
	StagePersist FileStage = "persist"
	StageMove    FileStage = "move"
)

// FileFailure records one file that did not make it to the archive.
type FileFailure struct {
	FileName string    `json:"file_name"`
	Stage    FileStage `json:"stage"`
	Reason   string    `json:"reason"`
}

// Snapshot is an immutable, point-in-time view of a job.
type Snapshot struct {
	JobID           string        `json:"job_id"`
	AdapterID       string        `json:"adapter"`
	SourceDir       string        `json:"source_dir"`
	DestDir         string        `json:"dest_dir"`
	Policy          ErrorPolicy   `json:"policy"`
	Trigger         string        `json:"trigger,omitempty"`
	Status          JobStatus     `json:"status"`
	TotalFiles      int           `json:"total_files"`
	CurrentIndex    int           `json:"current_index"`
	SucceededCount  int           `json:"succeeded_count"`
	FailedCount     int           `json:"failed_count"`
	CurrentFilename string        `json:"current_filename"`
	LastError       string        `json:"last_error,omitempty"`
	RowsInserted    int           `json:"rows_inserted"`
	RowsUpdated     int           `json:"rows_updated"`
	Failures        []FileFailure `json:"failures,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// Percent returns progress as 0-100. An empty run is 100% once terminal.
func (s Snapshot) Percent() int {
	if s.TotalFiles == 0 {
		if s.Status.Terminal() {
			return 100
		}
		return 0
	}
	return (s.CurrentIndex * 100) / s.TotalFiles
}

// StartRequest carries everything a job needs; inputs are captured once.
type StartRequest struct {
	SourceDir string
	DestDir   string
	AdapterID string
}
