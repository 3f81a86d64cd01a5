package adapters

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/labingest/internal/core"
)

func testParser() *Delimited {
	return &Delimited{
		Table: "samples",
		Key:   []string{"Sample ID", "Measured"},
		Fields: []core.FieldSpec{
			{Name: "Sample ID", Aliases: []string{"Sample"}, Type: core.FieldText, Required: true, Normalizer: NormalizeSampleID},
			{Name: "Measured", Type: core.FieldTimestamp, Required: true},
			{Name: "Value", Type: core.FieldNumeric, Required: true},
			{Name: "Flag", Type: core.FieldEnum, EnumValues: []string{"OK", "Review"}},
			{Name: "Note", Type: core.FieldText},
		},
		SkipRow: isSummaryRow("Sample ID"),
	}
}

func parseError(t *testing.T, err error) *core.ParseError {
	t.Helper()
	var pe *core.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *core.ParseError", err)
	}
	return pe
}

func TestDelimited_Parse(t *testing.T) {
	input := strings.Join([]string{
		"Instrument,QC-7",
		"Operator,jdoe",
		"",
		"Sample ID,Measured,Value,Flag,Note",
		"lot 12  d3,2024-03-01 10:30:00,1.25,ok,",
		"LOT-13,2024-03-01 11:00:00,<LOQ,,below range",
		"Average,,1.25,,",
		",,,,",
	}, "\n")

	// Value is required, so "<LOQ" fails the second row.
	_, err := testParser().Parse([]byte(input))
	pe := parseError(t, err)
	if pe.Line != 6 {
		t.Errorf("Line = %d, want 6", pe.Line)
	}
	if !strings.Contains(pe.Error(), `invalid number for "Value"`) {
		t.Errorf("error = %q, want invalid number message", pe.Error())
	}

	input = strings.Replace(input, "<LOQ", "2.5", 1)
	recs, err := testParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(recs))
	}

	first := recs[0]
	if first.Table != "samples" {
		t.Errorf("Table = %q, want samples", first.Table)
	}
	if got := first.NaturalKey(); got != "LOT 12 D3|2024-03-01T10:30:00Z" {
		t.Errorf("NaturalKey() = %q", got)
	}
	if first.Key[0].Name != "sample_id" || first.Key[1].Name != "measured" {
		t.Errorf("key columns = %q, %q", first.Key[0].Name, first.Key[1].Name)
	}
	want := map[string]any{"value": 1.25, "flag": "OK", "note": nil}
	for _, c := range first.Fields {
		if c.Value != want[c.Name] {
			t.Errorf("%s = %v, want %v", c.Name, c.Value, want[c.Name])
		}
	}
	if ts, ok := first.Key[1].Value.(time.Time); !ok || ts.Location() != time.UTC {
		t.Errorf("Measured = %#v, want UTC time", first.Key[1].Value)
	}
}

func TestDelimited_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "comma", input: "Sample ID,Measured,Value\nA,2024-01-02,1.5\n", want: 1.5},
		{name: "tab", input: "Sample ID\tMeasured\tValue\nA\t2024-01-02\t1,500.5\n", want: 1500.5},
		{name: "semicolon implies decimal comma", input: "Sample ID;Measured;Value\nA;2024-01-02;1,5\n", want: 1.5},
		{name: "CRLF", input: "Sample ID,Measured,Value\r\nA,2024-01-02,7\r\n", want: 7},
		{name: "quoted with embedded comma", input: "Sample ID,Measured,Value\n\"A, B\",2024-01-02,\"3\"\n", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := testParser().Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("len(records) = %d, want 1", len(recs))
			}
			if got := recs[0].Fields[0].Value; got != tt.want {
				t.Errorf("Value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelimited_Aliases(t *testing.T) {
	recs, err := testParser().Parse([]byte("Measured,Sample,Value\n2024-01-02,x1,4\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := recs[0].Key[0].Value; got != "X1" {
		t.Errorf("Sample ID = %v, want X1", got)
	}
}

func TestDelimited_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantMsg  string
	}{
		{name: "empty file", input: "  \n", wantMsg: "empty file"},
		{name: "header missing", input: "a,b,c\n1,2,3\n", wantMsg: "header not found"},
		{name: "required empty", input: "Sample ID,Measured,Value\n,2024-01-02,1\n", wantLine: 2, wantMsg: `required field "Sample ID" is empty`},
		{name: "bad date", input: "Sample ID,Measured,Value\nA,soon,1\n", wantLine: 2, wantMsg: `invalid date for "Measured"`},
		{name: "short row", input: "Sample ID,Measured,Value\nA,2024-01-02\n", wantLine: 2, wantMsg: `required field "Value" is empty`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testParser().Parse([]byte(tt.input))
			pe := parseError(t, err)
			if pe.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", pe.Line, tt.wantLine)
			}
			if !strings.Contains(pe.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", pe.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDelimited_OptionalInvalidBecomesNil(t *testing.T) {
	recs, err := testParser().Parse([]byte("Sample ID,Measured,Value,Flag\nA,2024-01-02,1,Unknown\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, c := range recs[0].Fields {
		if c.Name == "flag" && c.Value != nil {
			t.Errorf("flag = %v, want nil", c.Value)
		}
	}
}

func TestDelimited_HeaderOnly(t *testing.T) {
	recs, err := testParser().Parse([]byte("Sample ID,Measured,Value\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len(records) = %d, want 0", len(recs))
	}
}

func TestDelimited_HeaderSearchLimit(t *testing.T) {
	preamble := strings.Repeat("setting,value\n", maxHeaderSearchRows)
	_, err := testParser().Parse([]byte(preamble + "Sample ID,Measured,Value\nA,2024-01-02,1\n"))
	if pe := parseError(t, err); !strings.Contains(pe.Error(), "header not found") {
		t.Errorf("error = %q, want header not found", pe.Error())
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		input string
		want  rune
	}{
		{"a,b,c\n1,2,3", ','},
		{"a\tb\tc\n1\t2\t3", '\t'},
		{"a;b;c\n1,5;2,5;3", ';'},
		{"single", ','},
	}
	for _, tt := range tests {
		if got := sniffDelimiter(tt.input); got != tt.want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
