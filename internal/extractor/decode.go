package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// =============================================================================
// DOCUMENT DECODING
// =============================================================================

// ErrEncoding is returned when a document cannot be decoded as text.
var ErrEncoding = errors.New("document is not valid text in the expected encoding")

// DefaultEncoding is the encoding assumed for documents.
const DefaultEncoding = "UTF-8"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeDocument converts raw document bytes into text.
//
// PARAMETERS:
//   - data: The raw document.
//   - name: The encoding label. Any WHATWG or IANA label is accepted, for
//     example "UTF-8", "shift_jis", "euc-jp", "gb18030" or "windows-1252".
//     Empty means UTF-8.
//
// RETURNS:
//   - The decoded text with any UTF-8 byte order mark removed.
//   - An error wrapping ErrEncoding when the bytes are not valid in the
//     encoding, or when the encoding label is unknown.
func DecodeDocument(data []byte, name string) (string, error) {
	if isUTF8(name) {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid UTF-8 byte sequence", ErrEncoding)
		}
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}

	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode %s: %v", ErrEncoding, name, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("%w: %s produced invalid text", ErrEncoding, name)
	}
	return string(bytes.TrimPrefix(decoded, utf8BOM)), nil
}

// isUTF8 reports whether the label names UTF-8.
func isUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// lookupEncoding resolves a label through the WHATWG index first and the
// IANA registry second.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding %q", ErrEncoding, name)
}
