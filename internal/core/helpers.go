package core

import (
	"path/filepath"
	"strings"
)

// toDBColumnName converts an instrument header to a database column name.
// "Viable cells/mL" -> "viable_cells_ml", "Sample ID" -> "sample_id"
func toDBColumnName(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case r == '%':
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteString("pct")
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ColumnName exposes the header-to-column mapping to store implementations.
func ColumnName(header string) string {
	return toDBColumnName(header)
}

// KeyColumnNames resolves a definition's natural-key field names to database columns.
func (d AdapterDefinition) KeyColumnNames() []string {
	cols := make([]string, 0, len(d.KeyColumns))
	for _, name := range d.KeyColumns {
		cols = append(cols, d.columnFor(name))
	}
	return cols
}

func (d AdapterDefinition) columnFor(name string) string {
	for _, spec := range d.FieldSpecs {
		if strings.EqualFold(spec.Name, name) {
			return spec.Column()
		}
	}
	return toDBColumnName(name)
}

// dirKey normalizes a (source, archive) pair for the single-flight registry.
func dirKey(sourceDir, destDir string) string {
	return cleanDir(sourceDir) + "\x00" + cleanDir(destDir)
}

func cleanDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
