// Package shader prepares shader text for compilation: encoding
// normalization and cached WGSL compilation to SPIR-V.
package shader

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source errors.
var (
	// ErrEmpty is returned for source without any text.
	ErrEmpty = errors.New("shader: empty source")

	// ErrInvalidEncoding is returned when the source is not valid UTF-8
	// (or valid UTF-16 behind a byte order mark).
	ErrInvalidEncoding = errors.New("shader: invalid text encoding")
)

// Normalize returns src as UTF-8 text.
//
// A UTF-8 byte order mark is stripped and UTF-16 text with a byte order
// mark is transcoded. Trailing NUL bytes, as left by C-string producers,
// are dropped. Text that is empty afterwards, or that contains invalid
// sequences, is rejected.
func Normalize(src []byte) ([]byte, error) {
	if len(bytes.TrimRight(src, "\x00")) == 0 {
		return nil, ErrEmpty
	}

	var out []byte
	switch {
	case bytes.HasPrefix(src, utf16LEBOM), bytes.HasPrefix(src, utf16BEBOM):
		// NUL bytes are part of UTF-16 code units; trim after decoding.
		var err error
		out, err = decodeUTF16(src)
		if err != nil {
			return nil, err
		}
	default:
		out = bytes.TrimPrefix(bytes.TrimRight(src, "\x00"), utf8BOM)
		if !utf8.Valid(out) {
			return nil, ErrInvalidEncoding
		}
		out = bytes.Clone(out)
	}

	out = bytes.TrimRight(out, "\x00")
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// decodeUTF16 transcodes UTF-16 text behind a byte order mark. The decoder
// replaces unpaired surrogates with U+FFFD, so the output may hold no more
// replacement characters than the input spelled out.
func decodeUTF16(src []byte) ([]byte, error) {
	if len(src)%2 != 0 {
		return nil, fmt.Errorf("%w: odd UTF-16 length %d", ErrInvalidEncoding, len(src))
	}
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}

	le := bytes.HasPrefix(src, utf16LEBOM)
	literal := 0
	for i := 2; i+1 < len(src); i += 2 {
		u := uint16(src[i])<<8 | uint16(src[i+1])
		if le {
			u = uint16(src[i+1])<<8 | uint16(src[i])
		}
		if u == utf8.RuneError {
			literal++
		}
	}
	if bytes.Count(out, []byte(string(utf8.RuneError))) > literal {
		return nil, fmt.Errorf("%w: unpaired UTF-16 surrogate", ErrInvalidEncoding)
	}
	return out, nil
}

// HasBOM reports whether src starts with a UTF-8 or UTF-16 byte order mark.
func HasBOM(src []byte) bool {
	return bytes.HasPrefix(src, utf8BOM) ||
		bytes.HasPrefix(src, utf16LEBOM) ||
		bytes.HasPrefix(src, utf16BEBOM)
}
