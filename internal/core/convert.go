package core

// convert.go provides the small conversions shared by the catalog reader and
// the row transformer:
//
//   - Header indexing by exact column name (BOM and surrounding space removed)
//   - Integer parsing of ranks and replication ids
//   - TRUE/FALSE flags as written by spreadsheet tools

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// HeaderIndex maps column names to their position in a CSV row.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// The first occurrence of a duplicated name wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := CleanHeader(h)
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// Cell returns the field of row under column, and whether it exists.
func (h HeaderIndex) Cell(row []string, column string) (string, bool) {
	pos, ok := h[column]
	if !ok || pos >= len(row) {
		return "", false
	}
	return row[pos], true
}

// CleanHeader removes a BOM and surrounding whitespace from a header name.
func CleanHeader(s string) string {
	return strings.TrimSpace(stripBOM(s))
}

// ParseInt parses a decimal integer, ignoring surrounding whitespace.
func ParseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// ParseFlag reports whether s is the literal TRUE, case-insensitively.
// Any other text, including an empty cell, is false.
func ParseFlag(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "TRUE")
}

// newCSVReader returns a reader configured for upstream tables: variable
// field counts and lenient quoting.
func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}
