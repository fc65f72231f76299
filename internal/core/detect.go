package core

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// valueColumns are the names accepted as the trailing value column of an
// accumulator table.
var valueColumns = []string{ColAccValue, ColValue}

// DetectEncoding classifies a table by its header. Rules apply in order:
//
//  1. expr_name and expr_value present: expression
//  2. sub_id and acc_value present: accumulator
//  3. first column sub_id and last column a value column: accumulator
//  4. anything else: unknown
func DetectEncoding(header []string) Encoding {
	has := func(col string) bool { return slices.Contains(header, col) }

	if has(ColExprName) && has(ColExprValue) {
		return EncodingExpression
	}
	if has(ColSubID) && has(ColAccValue) {
		return EncodingAccumulator
	}
	if len(header) > 0 && header[0] == ColSubID && slices.Contains(valueColumns, header[len(header)-1]) {
		return EncodingAccumulator
	}
	return EncodingUnknown
}

// DetectText classifies CSV text by its first line only. Leading blank lines
// are not lines of the table, so the first line is taken after trimming.
// It returns the parsed header, names cleaned, along with the encoding.
func DetectText(text string) (Encoding, []string, error) {
	line, _, _ := strings.Cut(trimTableText(text), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return EncodingUnknown, nil, nil
	}

	header, err := newCSVReader(strings.NewReader(line)).Read()
	if err != nil && err != io.EOF {
		return EncodingUnknown, nil, fmt.Errorf("parse header: %w", err)
	}
	for i := range header {
		header[i] = CleanHeader(header[i])
	}
	return DetectEncoding(header), header, nil
}

// trimTableText removes a byte-order mark and the whitespace around a table.
func trimTableText(text string) string {
	return strings.TrimSpace(stripBOM(text))
}
