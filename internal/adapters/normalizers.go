package adapters

import "strings"

// glycanNames maps the spellings seen across processing methods to the
// Oxford notation used in reports.
var glycanNames = map[string]string{
	"g0":      "G0",
	"g0f":     "G0F",
	"g0-n":    "G0-GN",
	"g0-gn":   "G0-GN",
	"g0f-n":   "G0F-GN",
	"g0f-gn":  "G0F-GN",
	"g1":      "G1",
	"g1f":     "G1F",
	"g1'f":    "G1F'",
	"g1f'":    "G1F'",
	"g2":      "G2",
	"g2f":     "G2F",
	"man5":    "Man5",
	"m5":      "Man5",
	"man6":    "Man6",
	"m6":      "Man6",
	"man7":    "Man7",
	"m7":      "Man7",
	"g2fs1":   "G2FS1",
	"g2fs2":   "G2FS2",
	"a2g2s1f": "G2FS1",
	"a2g2s2f": "G2FS2",
}

// NormalizeSampleID collapses internal whitespace and upper-cases the ID so
// "lot 12 - d3" and "LOT 12 - D3" key the same sample.
func NormalizeSampleID(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// NormalizeGlycanName converts a glycan label to Oxford notation.
// If the label is not recognized, returns it trimmed.
func NormalizeGlycanName(s string) string {
	s = strings.TrimSpace(s)
	key := strings.ToLower(strings.ReplaceAll(s, " ", ""))
	if name, ok := glycanNames[key]; ok {
		return name
	}
	return s
}

// summaryLabels mark rows that aggregate the peaks above them.
var summaryLabels = map[string]bool{
	"total":   true,
	"sum":     true,
	"average": true,
	"mean":    true,
	"sd":      true,
	"%rsd":    true,
}

// isSummaryRow returns a SkipRow func that drops rows whose column value is
// a summary label.
func isSummaryRow(column string) func(Row) bool {
	return func(r Row) bool {
		return summaryLabels[strings.ToLower(r.Get(column))]
	}
}
