package adapters

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func encodeUTF16(t *testing.T, s string, e unicode.Endianness, bom unicode.BOMPolicy) []byte {
	t.Helper()
	out, err := unicode.UTF16(e, bom).NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return out
}

func TestDecode(t *testing.T) {
	const text = "Sample ID,Viability (%)\nLOT-1,97.5\n"

	latin1, err := charmap.Windows1252.NewEncoder().Bytes([]byte("Température,Operator\n25,José\n"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{name: "plain UTF-8", raw: []byte(text), want: text},
		{name: "UTF-8 with BOM", raw: append([]byte{0xEF, 0xBB, 0xBF}, text...), want: text},
		{name: "UTF-16LE with BOM", raw: encodeUTF16(t, text, unicode.LittleEndian, unicode.UseBOM), want: text},
		{name: "UTF-16BE with BOM", raw: encodeUTF16(t, text, unicode.BigEndian, unicode.UseBOM), want: text},
		{name: "UTF-16LE without BOM", raw: encodeUTF16(t, text, unicode.LittleEndian, unicode.IgnoreBOM), want: text},
		{name: "UTF-16BE without BOM", raw: encodeUTF16(t, text, unicode.BigEndian, unicode.IgnoreBOM), want: text},
		{name: "Windows-1252", raw: latin1, want: "Température,Operator\n25,José\n"},
		{name: "multibyte UTF-8 kept", raw: []byte("Average diameter (μm)"), want: "Average diameter (μm)"},
		{name: "empty", raw: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSniffUTF16_ShortInput(t *testing.T) {
	if _, ok := sniffUTF16([]byte{'a', 0}); ok {
		t.Error("sniffUTF16() ok = true for 2 bytes, want false")
	}
}
