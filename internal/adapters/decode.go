package adapters

// decode.go turns raw instrument bytes into UTF-8 text.
//
// Instrument PCs export in whatever code page the vendor software was built
// with: Vi-Cell writes UTF-16LE with a BOM, older Windows tools write
// Windows-1252, newer ones UTF-8 with or without a BOM.

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw to UTF-8. A BOM decides the encoding when present;
// otherwise NUL-interleaved text is read as UTF-16, valid UTF-8 is kept,
// and anything else is read as Windows-1252.
func Decode(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8), bytes.HasPrefix(raw, bomUTF16LE), bytes.HasPrefix(raw, bomUTF16BE):
		// BOMOverride picks the encoding from the BOM and strips it.
		return transformString(unicode.BOMOverride(transform.Nop), raw)
	}

	// NUL is valid UTF-8, so UTF-16 must be ruled out first.
	if enc, ok := sniffUTF16(raw); ok {
		return transformString(enc.NewDecoder(), raw)
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	return transformString(charmap.Windows1252.NewDecoder(), raw)
}

func transformString(t transform.Transformer, raw []byte) (string, error) {
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return "", fmt.Errorf("encoding error: %w", err)
	}
	return string(out), nil
}

// sniffUTF16 detects BOM-less UTF-16 from the position of NUL bytes in
// mostly-ASCII text.
func sniffUTF16(raw []byte) (encoding.Encoding, bool) {
	n := len(raw)
	if n > 512 {
		n = 512
	}
	n &^= 1
	if n < 4 {
		return nil, false
	}

	var evenNUL, oddNUL int
	for i := 0; i < n; i++ {
		if raw[i] != 0 {
			continue
		}
		if i%2 == 0 {
			evenNUL++
		} else {
			oddNUL++
		}
	}

	half := n / 2
	switch {
	case oddNUL > half*3/4 && evenNUL == 0:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	case evenNUL > half*3/4 && oddNUL == 0:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), true
	}
	return nil, false
}
