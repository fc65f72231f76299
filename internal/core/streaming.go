package core

// streaming.go provides the reader chain applied to every archive entry
// before it is parsed as CSV or JSON:
//
//   - Byte-order marks are dropped (UTF-8, and UTF-16 which is re-encoded to UTF-8)
//   - Invalid UTF-8 sequences are replaced with U+FFFD instead of failing
//   - Entries larger than the configured limit are rejected
//
// Use NewEntryReader to apply all transforms in the correct order.

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxEntryBytes bounds the decoded size of a single archive entry.
const DefaultMaxEntryBytes int64 = 512 << 20

// ErrEntryTooLarge is returned when an archive entry exceeds the size limit.
var ErrEntryTooLarge = errors.New("archive entry too large")

// bom is the UTF-8 byte-order mark as it appears in decoded text.
const bom = "\ufeff"

// NewEntryReader wraps r so that a leading byte-order mark is dropped and
// invalid UTF-8 is sanitized on the fly.
//
// The order matters: the BOM must be recognized before decoding so that a
// UTF-16 entry is detected by its mark.
func NewEntryReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// readEntryText reads a whole entry through NewEntryReader, enforcing limit.
// A limit <= 0 means DefaultMaxEntryBytes.
func readEntryText(r io.Reader, limit int64) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}

	var b strings.Builder
	n, err := io.Copy(&b, io.LimitReader(NewEntryReader(r), limit+1))
	if err != nil {
		return "", fmt.Errorf("decode entry: %w", err)
	}
	if n > limit {
		return "", fmt.Errorf("%w: more than %d bytes", ErrEntryTooLarge, limit)
	}
	return b.String(), nil
}

// stripBOM removes a BOM left in already decoded text.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, bom)
}
