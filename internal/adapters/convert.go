package adapters

// convert.go turns instrument cell text into typed values.
//
// These functions handle what instrument software actually writes:
//   - US, EU and ISO dates, with and without times and AM/PM
//   - Thousand separators, decimal commas and unit suffixes in numbers
//   - "N/A", "---" and similar placeholders for a missing reading
//   - Excel formula prefixes (="value") left behind by spreadsheet round trips
//
// Every Parse* function reports ok=false for empty or unparseable input so
// the caller decides whether a missing value is an error.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "02-Jan-2006", "2-Jan-2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02 15:04:05",
		"1/2/2006 3:04:05 PM",
		"1/2/2006 3:04 PM",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"01/02/2006 15:04:05",
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
		"02-Jan-2006 15:04:05",
		"Jan 2 2006 3:04PM",
		"Jan 2, 2006 3:04:05 PM",
	}
)

// missingValues are placeholders instruments write for "no reading".
var missingValues = map[string]bool{
	"n/a":  true,
	"#n/a": true,
	"na":   true,
	"n.a.": true,
	"nan":  true,
	"-":    true,
	"--":   true,
	"---":  true,
	"***":  true,
}

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// IsMissing reports whether a cleaned cell carries no value.
func IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || missingValues[strings.ToLower(s)]
}

// ParseNumber converts a cell to float64. It accepts thousands separators,
// accounting negatives "(1.5)", trailing "%" and unit-free scientific
// notation. With decimalComma set, "1.234,5" reads as 1234.5.
func ParseNumber(s string, decimalComma bool) (float64, bool) {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	if decimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseDate converts a cell to a UTC midnight date.
// Supports multiple date formats and handles 2-digit years with pivot.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseTimestamp converts a cell to a time in UTC. Instrument clocks carry
// no zone, so wall-clock values are taken as UTC; a bare date is midnight.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), true
		}
	}
	return ParseDate(s)
}

// ParseBool converts a cell to bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0, pass/fail.
func ParseBool(s string) (bool, bool) {
	s = strings.TrimSpace(strings.ToLower(s))

	switch s {
	case "true", "t", "yes", "y", "1", "pass", "passed":
		return true, true
	case "false", "f", "no", "n", "0", "fail", "failed":
		return false, true
	default:
		return false, false
	}
}

// HeaderIndex maps lowercased, cleaned header names to column positions.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
// The first occurrence of a duplicated header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}
