package transcript

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts raw transcript bytes to UTF-8.
// BOM-marked UTF-16 is decoded, a UTF-8 BOM is stripped, and bytes that are
// not valid UTF-8 are treated as Windows-1252 (what desktop editors on
// Windows save by default).
func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		data = data[len(utf8BOM):]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(data, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM))
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	return decodeWith(data, charmap.Windows1252)
}

func decodeWith(data []byte, enc encoding.Encoding) (string, error) {
	reader := transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decoding transcript text: %w", err)
	}
	return string(decoded), nil
}
