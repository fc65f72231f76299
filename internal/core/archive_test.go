package core

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArchive_NamesAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "UP.run.R1.zip")
	writeZip(t, path, []zipEntry{
		{Name: "R1/", Body: ""},
		{Name: "R1/UP.run.R1.json", Body: metadataUPR1},
		{Name: "R1/T.csv", Body: "\ufeffsub_id,acc_value\n0,1\n"},
	})

	a, err := OpenArchive(path, 0)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	if diff := cmp.Diff([]string{"R1/UP.run.R1.json", "R1/T.csv"}, a.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	text, err := a.ReadText("R1/T.csv")
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if text != "sub_id,acc_value\n0,1\n" {
		t.Errorf("ReadText = %q, want BOM removed", text)
	}

	raw, err := a.ReadBytes("R1/T.csv")
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(raw) != len("\ufeffsub_id,acc_value\n0,1\n") {
		t.Errorf("ReadBytes returned %d bytes", len(raw))
	}

	if _, err := a.ReadText("missing.csv"); err == nil {
		t.Error("ReadText of a missing entry succeeded")
	}
}

func TestArchive_RepeatedNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "UP.run.R1.zip")
	writeZip(t, path, []zipEntry{
		{Name: "R1/UP.run.R1.json", Body: metadataUPR1},
		{Name: "R1/T.csv", Body: "first"},
		{Name: "R1/UP.run.R1.json", Body: metadataUPR1},
	})

	a, err := OpenArchive(path, 0)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	want := []string{"R1/UP.run.R1.json", "R1/T.csv", "R1/UP.run.R1.json"}
	if diff := cmp.Diff(want, a.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	_, err = LoadRunMetadata(a, "UP", "R1")
	var countErr *MetadataCountError
	if !errors.As(err, &countErr) || countErr.Count != 2 {
		t.Fatalf("error = %v, want MetadataCountError with count 2", err)
	}
}

func TestArchive_EntryLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.zip")
	writeZip(t, path, []zipEntry{{Name: "T.csv", Body: "0123456789"}})

	a, err := OpenArchive(path, 4)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()

	if _, err := a.ReadText("T.csv"); !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("ReadText error = %v, want ErrEntryTooLarge", err)
	}
	if _, err := a.ReadBytes("T.csv"); !errors.Is(err, ErrEntryTooLarge) {
		t.Errorf("ReadBytes error = %v, want ErrEntryTooLarge", err)
	}
}

func TestOpenArchive_Missing(t *testing.T) {
	_, err := OpenArchive(filepath.Join(t.TempDir(), "none.zip"), 0)

	var inputErr *InputError
	if !errors.As(err, &inputErr) || inputErr.Kind != InputArchive {
		t.Fatalf("error = %v, want InputError(%s)", err, InputArchive)
	}
}
