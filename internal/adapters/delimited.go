package adapters

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/labingest/internal/core"
)

// maxHeaderSearchRows is the maximum number of rows to scan for the header.
// Instruments write a preamble (run settings, operator, serial number) above it.
const maxHeaderSearchRows = 20

// Delimited parses comma, tab or semicolon separated exports whose layout is
// described by field specs. It is safe for concurrent use.
type Delimited struct {
	Table  string
	Fields []core.FieldSpec
	Key    []string // Field names forming the natural key, in order

	// Comma is the field delimiter; 0 sniffs ',', '\t' or ';' from the text.
	Comma rune
	// DecimalComma reads "12,5" as 12.5. Implied when the delimiter is ';'.
	DecimalComma bool
	// SkipRow drops summary rows such as "Average" or "Total".
	SkipRow func(row Row) bool
}

// Row gives SkipRow access to the raw cells of a data row by header name.
type Row struct {
	cells  []string
	header HeaderIndex
}

// Get returns the cleaned cell under header, or "".
func (r Row) Get(header string) string {
	pos, ok := r.header[strings.ToLower(header)]
	if !ok || pos >= len(r.cells) {
		return ""
	}
	return CleanCell(r.cells[pos])
}

// Definition wraps the parser in a registry definition.
func (d *Delimited) Definition(info core.AdapterInfo, extensions, exclude []string) core.AdapterDefinition {
	info.Table = d.Table
	return core.AdapterDefinition{
		Info:            info,
		Extensions:      extensions,
		ExcludePatterns: exclude,
		FieldSpecs:      d.Fields,
		KeyColumns:      d.Key,
		Adapter:         d,
	}
}

type record struct {
	line  int
	cells []string
}

// Parse implements core.FormatAdapter.
func (d *Delimited) Parse(raw []byte) ([]core.NormalizedRecord, error) {
	text, err := Decode(raw)
	if err != nil {
		return nil, &core.ParseError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &core.ParseError{Err: errors.New("empty file")}
	}

	comma := d.Comma
	if comma == 0 {
		comma = sniffDelimiter(text)
	}
	decimalComma := d.DecimalComma || comma == ';'

	rows, err := readRows(text, comma)
	if err != nil {
		return nil, err
	}

	headerRow, cols, err := d.findHeader(rows)
	if err != nil {
		return nil, err
	}
	header := MakeHeaderIndex(rows[headerRow].cells)

	var out []core.NormalizedRecord
	for _, row := range rows[headerRow+1:] {
		if isEmptyRow(row.cells) {
			continue
		}
		if d.SkipRow != nil && d.SkipRow(Row{cells: row.cells, header: header}) {
			continue
		}

		rec, err := d.buildRecord(row, cols, decimalComma)
		if err != nil {
			return nil, &core.ParseError{Line: row.line, Err: err}
		}
		out = append(out, rec)
	}

	return out, nil
}

func readRows(text string, comma rune) ([]record, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []record
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &core.ParseError{Line: pe.Line, Err: pe.Err}
			}
			return nil, &core.ParseError{Err: err}
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, record{line: line, cells: cells})
	}
	return rows, nil
}

// findHeader returns the header row and, for each field spec, its column
// position or -1. The header is the first row in which every required field
// resolves by name or alias.
func (d *Delimited) findHeader(rows []record) (int, []int, error) {
	limit := maxHeaderSearchRows
	if len(rows) < limit {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		idx := MakeHeaderIndex(rows[i].cells)
		cols := make([]int, len(d.Fields))
		complete := true
		for f, spec := range d.Fields {
			cols[f] = lookupColumn(idx, spec)
			if cols[f] < 0 && spec.Required {
				complete = false
				break
			}
		}
		if complete {
			return i, cols, nil
		}
	}

	return 0, nil, &core.ParseError{Err: fmt.Errorf("header not found in first %d rows (expected: %s)", limit, strings.Join(d.requiredNames(), ", "))}
}

func lookupColumn(idx HeaderIndex, spec core.FieldSpec) int {
	if pos, ok := idx[strings.ToLower(spec.Name)]; ok {
		return pos
	}
	for _, alias := range spec.Aliases {
		if pos, ok := idx[strings.ToLower(alias)]; ok {
			return pos
		}
	}
	return -1
}

func (d *Delimited) requiredNames() []string {
	var names []string
	for _, spec := range d.Fields {
		if spec.Required {
			names = append(names, spec.Name)
		}
	}
	return names
}

func (d *Delimited) buildRecord(row record, cols []int, decimalComma bool) (core.NormalizedRecord, error) {
	values := make(map[string]any, len(d.Fields))

	for f, spec := range d.Fields {
		var cell string
		if pos := cols[f]; pos >= 0 && pos < len(row.cells) {
			cell = CleanCell(row.cells[pos])
		}
		if spec.Normalizer != nil && cell != "" {
			cell = spec.Normalizer(cell)
		}

		v, err := convertCell(spec, cell, decimalComma)
		if err != nil {
			return core.NormalizedRecord{}, err
		}
		if v == nil && spec.Required {
			return core.NormalizedRecord{}, fmt.Errorf("required field %q is empty", spec.Name)
		}
		values[strings.ToLower(spec.Name)] = v
	}

	rec := core.NormalizedRecord{Table: d.Table}
	isKey := make(map[string]bool, len(d.Key))
	for _, name := range d.Key {
		lower := strings.ToLower(name)
		isKey[lower] = true
		spec := d.spec(lower)
		if values[lower] == nil {
			return core.NormalizedRecord{}, fmt.Errorf("required field %q is empty", spec.Name)
		}
		rec.Key = append(rec.Key, core.Column{Name: spec.Column(), Value: values[lower]})
	}
	for _, spec := range d.Fields {
		lower := strings.ToLower(spec.Name)
		if isKey[lower] {
			continue
		}
		rec.Fields = append(rec.Fields, core.Column{Name: spec.Column(), Value: values[lower]})
	}

	return rec, nil
}

func (d *Delimited) spec(lowerName string) core.FieldSpec {
	for _, spec := range d.Fields {
		if strings.ToLower(spec.Name) == lowerName {
			return spec
		}
	}
	return core.FieldSpec{Name: lowerName}
}

// convertCell returns nil for a missing value. A value that cannot be
// converted is an error for required fields and nil otherwise; instruments
// write markers like "<LOQ" into optional result columns.
func convertCell(spec core.FieldSpec, cell string, decimalComma bool) (any, error) {
	if IsMissing(cell) {
		return nil, nil
	}

	var (
		v  any
		ok bool
	)
	switch spec.Type {
	case core.FieldText:
		return cell, nil
	case core.FieldEnum:
		for _, allowed := range spec.EnumValues {
			if strings.EqualFold(cell, allowed) {
				return allowed, nil
			}
		}
		if spec.Required {
			return nil, fmt.Errorf("invalid enum for %q: %q", spec.Name, cell)
		}
		return nil, nil
	case core.FieldNumeric:
		v, ok = ParseNumber(cell, decimalComma)
	case core.FieldDate:
		v, ok = ParseDate(cell)
	case core.FieldTimestamp:
		v, ok = ParseTimestamp(cell)
	case core.FieldBool:
		v, ok = ParseBool(cell)
	default:
		return cell, nil
	}

	if ok {
		return v, nil
	}
	if spec.Required {
		kind := "value"
		switch spec.Type {
		case core.FieldNumeric:
			kind = "number"
		case core.FieldDate, core.FieldTimestamp:
			kind = "date"
		case core.FieldBool:
			kind = "bool"
		}
		return nil, fmt.Errorf("invalid %s for %q: %q", kind, spec.Name, cell)
	}
	return nil, nil
}

// sniffDelimiter picks the most frequent of ',', '\t' and ';' across the
// first lines of text.
func sniffDelimiter(text string) rune {
	lines := strings.SplitN(text, "\n", maxHeaderSearchRows+1)
	if len(lines) > maxHeaderSearchRows {
		lines = lines[:maxHeaderSearchRows]
	}

	best, bestCount := ',', 0
	for _, c := range []rune{',', '\t', ';'} {
		n := 0
		for _, line := range lines {
			n += strings.Count(line, string(c))
		}
		if n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
