package core

// normalize.go turns located table text into a SourceTable and converts
// expression tables into the canonical accumulator layout.
//
// An expression table carries one row per (dimension tuple, expression) with
// the expression name and value as two columns. The accumulator layout that
// replaces it is:
//
//	sub_id, <every non-expression column>, acc_id, acc_value
//
// sub_id and acc_id are "0" placeholders: the replication id of an output row
// is assigned by the row transformer, not taken from this column.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// ParseTable parses the text of an archive entry. The encoding is detected
// from the first line; records are every following CSV record. Records the
// CSV reader rejects are counted in malformed and skipped.
func ParseTable(entry, text string) (table *SourceTable, malformed int, err error) {
	enc, _, err := DetectText(text)
	if err != nil {
		return nil, 0, fmt.Errorf("table %s: %w", entry, err)
	}

	table, malformed, err = readTable(entry, newCSVReader(strings.NewReader(trimTableText(text))))
	if err != nil {
		return nil, malformed, err
	}
	table.Encoding = enc
	return table, malformed, nil
}

// readTable reads the header record and then every data record of cr.
// A header the reader rejects fails the table; a data record is never
// promoted to header.
func readTable(entry string, cr *csv.Reader) (*SourceTable, int, error) {
	table := &SourceTable{Entry: entry}

	header, err := cr.Read()
	if err == io.EOF {
		return table, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("table %s: header: %w", entry, err)
	}
	for i := range header {
		header[i] = CleanHeader(header[i])
	}
	table.Header = header

	malformed := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				malformed++
				continue
			}
			return nil, malformed, fmt.Errorf("table %s: %w", entry, err)
		}
		table.Records = append(table.Records, rec)
	}

	return table, malformed, nil
}

// NormalizeTable converts an expression table to accumulator layout.
// Tables of any other encoding are returned unchanged, so normalizing a
// normalized table is a no-op. Rows shorter than the header are dropped.
func NormalizeTable(t *SourceTable) *SourceTable {
	if t == nil || t.Encoding != EncodingExpression {
		return t
	}

	valueIdx := slices.Index(t.Header, ColExprValue)
	if valueIdx < 0 {
		return t
	}

	keep := make([]int, 0, len(t.Header))
	for i, col := range t.Header {
		if col != ColExprName && col != ColExprValue {
			keep = append(keep, i)
		}
	}

	header := make([]string, 0, len(keep)+3)
	header = append(header, ColSubID)
	for _, i := range keep {
		header = append(header, t.Header[i])
	}
	header = append(header, ColAccID, ColAccValue)

	out := &SourceTable{
		Entry:    t.Entry,
		Encoding: EncodingAccumulator,
		Header:   header,
		Records:  make([][]string, 0, len(t.Records)),
	}

	for _, rec := range t.Records {
		if len(rec) < len(t.Header) {
			continue
		}
		row := make([]string, 0, len(header))
		row = append(row, "0")
		for _, i := range keep {
			row = append(row, rec[i])
		}
		row = append(row, "0", rec[valueIdx])
		out.Records = append(out.Records, row)
	}

	return out
}

// WriteTable serializes t as CSV text: header first, then records.
func WriteTable(w io.Writer, t *SourceTable) error {
	cw := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := cw.Write(t.Header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return err
	}
	return cw.Error()
}

// NormalizeText converts expression-format CSV text to accumulator-format
// CSV text. Text in any other format is returned unchanged.
func NormalizeText(text string) (string, error) {
	enc, _, err := DetectText(text)
	if err != nil {
		return "", err
	}
	if enc != EncodingExpression {
		return text, nil
	}

	t, _, err := ParseTable("", text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := WriteTable(&buf, NormalizeTable(t)); err != nil {
		return "", fmt.Errorf("write normalized table: %w", err)
	}
	return buf.String(), nil
}
