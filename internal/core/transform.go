package core

// transform.go rewrites canonical (accumulator-shaped) records into output
// rows. Every record is read through one shape:
//
//	first field  replication id
//	middle       dimension values
//	last field   value
//
// Expression tables reach this code only after NormalizeTable, so both table
// encodings share a single path.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	errEmptyRow      = errors.New("empty row")
	errReplicationID = errors.New("replication id is not an integer")
)

// accumulatorRow is one decoded record of an accumulator table.
type accumulatorRow struct {
	SubID int
	Dims  []string
	Value string
	Short bool // Only one field: the id and the value are the same cell
}

// decodeAccumulatorRow splits a record into replication id, dimensions and
// value. An empty replication id field reads as 0.
func decodeAccumulatorRow(fields []string) (accumulatorRow, error) {
	if len(fields) == 0 {
		return accumulatorRow{}, errEmptyRow
	}

	var row accumulatorRow
	if fields[0] != "" {
		id, err := ParseInt(fields[0])
		if err != nil {
			return accumulatorRow{}, fmt.Errorf("%w: %q", errReplicationID, fields[0])
		}
		row.SubID = id
	}

	row.Value = fields[len(fields)-1]
	if len(fields) > 2 {
		row.Dims = fields[1 : len(fields)-1]
	}
	row.Short = len(fields) < 2
	return row, nil
}

// TransformStats counts what happened to the records of one table.
type TransformStats struct {
	Read      int // Data records seen
	Written   int // Output rows produced
	Dropped   int // Records removed by the replication filter
	Malformed int // Records skipped because they could not be decoded
	Short     int // Records with a single field
}

// RowTransformer maps records of one table onto the output schema of one
// mapping entry.
type RowTransformer struct {
	Entry       MappingEntry
	KeepAllSubs bool
}

// Transform maps one record. ok is false when the record is dropped by the
// replication filter; err is non-nil when the record is malformed.
func (t RowTransformer) Transform(fields []string) (row CanonicalRow, ok bool, err error) {
	src, err := decodeAccumulatorRow(fields)
	if err != nil {
		return CanonicalRow{}, false, err
	}

	rank := t.Entry.TableRank()
	dims := make([]string, 0, t.Entry.ParameterRank)

	switch {
	case t.Entry.IsSampleDim:
		row.ReplicationID = 0
		dims = append(dims, strconv.Itoa(src.SubID))
	case t.KeepAllSubs:
		row.ReplicationID = src.SubID
	default:
		if src.SubID != 0 {
			return CanonicalRow{}, false, nil
		}
		row.ReplicationID = 0
	}

	for i := 0; i < rank; i++ {
		if i < len(src.Dims) {
			dims = append(dims, src.Dims[i])
		} else {
			dims = append(dims, "0")
		}
	}

	row.Dims = dims
	row.Value = src.Value
	return row, true, nil
}

// TransformTable maps every record of table. Malformed records are skipped
// and reported through onMalformed when it is non-nil.
func (t RowTransformer) TransformTable(table *SourceTable, onMalformed func(rec []string, err error)) ([]CanonicalRow, TransformStats) {
	var (
		rows  = make([]CanonicalRow, 0, len(table.Records))
		stats TransformStats
	)

	for _, rec := range table.Records {
		stats.Read++
		if len(rec) == 1 {
			stats.Short++
		}

		row, ok, err := t.Transform(rec)
		switch {
		case err != nil:
			stats.Malformed++
			if onMalformed != nil {
				onMalformed(rec, err)
			}
		case !ok:
			stats.Dropped++
		default:
			stats.Written++
			rows = append(rows, row)
		}
	}

	return rows, stats
}

// OutputHeader returns the parameter file header for rank dimensions:
// sub_id, Dim0..Dim(rank-1), param_value.
func OutputHeader(rank int) []string {
	header := make([]string, 0, rank+2)
	header = append(header, ColSubID)
	for i := 0; i < rank; i++ {
		header = append(header, "Dim"+strconv.Itoa(i))
	}
	return append(header, ColParamValue)
}

// WriteParameterCSV writes a parameter file: header then rows, with CRLF
// record terminators.
func WriteParameterCSV(w io.Writer, rank int, rows []CanonicalRow) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(OutputHeader(rank)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.Fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
