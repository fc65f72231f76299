package core

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const expressionTable = "sub_id,Age,expr_name,expr_value\n" +
	"0,Y,expr0,0.5\n" +
	"1,Y,expr0,0.7\n" +
	"0,O\n" +
	"0,O,expr0,0.9\n"

func TestNormalizeTable(t *testing.T) {
	table, malformed, err := ParseTable("Mortality.csv", expressionTable)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d, want 0", malformed)
	}
	if table.Encoding != EncodingExpression {
		t.Fatalf("Encoding = %s, want expression", table.Encoding)
	}

	got := NormalizeTable(table)

	want := &SourceTable{
		Entry:    "Mortality.csv",
		Encoding: EncodingAccumulator,
		Header:   []string{"sub_id", "sub_id", "Age", "acc_id", "acc_value"},
		Records: [][]string{
			{"0", "0", "Y", "0", "0.5"},
			{"0", "1", "Y", "0", "0.7"},
			{"0", "0", "O", "0", "0.9"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeTable mismatch (-want +got):\n%s", diff)
	}
	if got := DetectEncoding(got.Header); got != EncodingAccumulator {
		t.Errorf("normalized header detected as %s", got)
	}
}

func TestNormalizeTable_PassesOtherEncodingsThrough(t *testing.T) {
	table := &SourceTable{Encoding: EncodingAccumulator, Header: []string{"sub_id", "acc_value"}}
	if got := NormalizeTable(table); got != table {
		t.Error("accumulator table was not returned unchanged")
	}
	if got := NormalizeTable(nil); got != nil {
		t.Error("nil table was not returned unchanged")
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	once, err := NormalizeText(expressionTable)
	if err != nil {
		t.Fatalf("first NormalizeText: %v", err)
	}
	twice, err := NormalizeText(once)
	if err != nil {
		t.Fatalf("second NormalizeText: %v", err)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("normalizing twice changed the text (-once +twice):\n%s", diff)
	}

	accumulator := "sub_id,Dim0,acc_value\n0,A,1\n"
	if got, _ := NormalizeText(accumulator); got != accumulator {
		t.Errorf("accumulator text changed: %q", got)
	}
}

// Converting an expression table and transforming it with the default
// options keeps no replication other than the placeholder 0, so every
// row survives and carries replication 0.
func TestNormalizeThenTransform(t *testing.T) {
	table, _, err := ParseTable("Mortality.csv", "Age,expr_name,expr_value\nY,e,0.5\nO,e,0.9\n")
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}

	tr := RowTransformer{Entry: MappingEntry{ParameterRank: 1}}
	rows, stats := tr.TransformTable(NormalizeTable(table), nil)

	if stats.Dropped != 0 || stats.Malformed != 0 {
		t.Errorf("stats = %+v, want nothing dropped", stats)
	}
	want := []CanonicalRow{
		{ReplicationID: 0, Dims: []string{"Y"}, Value: "0.5"},
		{ReplicationID: 0, Dims: []string{"O"}, Value: "0.9"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTable(t *testing.T) {
	table, malformed, err := ParseTable("t.csv", "\ufeff sub_id ,Dim0,acc_value\r\n0,A,1\r\n1,B\r\n\r\n")
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}

	want := &SourceTable{
		Entry:    "t.csv",
		Encoding: EncodingAccumulator,
		Header:   []string{"sub_id", "Dim0", "acc_value"},
		Records:  [][]string{{"0", "A", "1"}, {"1", "B"}},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("ParseTable mismatch (-want +got):\n%s", diff)
	}
	if malformed != 0 {
		t.Errorf("malformed = %d, want 0", malformed)
	}
}

func TestParseTable_LeadingBlankLine(t *testing.T) {
	table, _, err := ParseTable("e.csv", "\r\nexpr_name,Dim0,expr_value\nexpr0,B,0.5\n")
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if table.Encoding != EncodingExpression {
		t.Errorf("Encoding = %s, want %s", table.Encoding, EncodingExpression)
	}
	if diff := cmp.Diff([]string{"expr_name", "Dim0", "expr_value"}, table.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTable(t *testing.T) {
	strict := func(text string) *csv.Reader {
		cr := csv.NewReader(strings.NewReader(text))
		cr.FieldsPerRecord = -1
		return cr
	}

	t.Run("rejected header fails the table", func(t *testing.T) {
		_, _, err := readTable("t.csv", strict("sub\"id,acc_value\n0,1\n"))

		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %v, want csv.ParseError", err)
		}
	})

	t.Run("rejected record is counted", func(t *testing.T) {
		table, malformed, err := readTable("t.csv", strict("sub_id,acc_value\n0,\"1\"x\n1,2\n"))
		if err != nil {
			t.Fatalf("readTable: %v", err)
		}
		if malformed != 1 {
			t.Errorf("malformed = %d, want 1", malformed)
		}
		if diff := cmp.Diff([]string{"sub_id", "acc_value"}, table.Header); diff != "" {
			t.Errorf("header mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([][]string{{"1", "2"}}, table.Records); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		table, _, err := readTable("t.csv", strict(""))
		if err != nil {
			t.Fatalf("readTable: %v", err)
		}
		if table.Header != nil || table.Records != nil {
			t.Errorf("table = %+v, want empty", table)
		}
	})
}
