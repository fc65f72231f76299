package core

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// zipEntry is one file of a fixture archive, written in slice order.
type zipEntry struct {
	Name string
	Body string
}

func writeZip(t testing.TB, path string, entries []zipEntry) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.Name, err)
		}
		if _, err := io.WriteString(w, e.Body); err != nil {
			t.Fatalf("zip write %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

// readZip returns every file of the archive at path keyed by entry name.
func readZip(t testing.TB, path string) map[string]string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = string(data)
	}
	return out
}

func zipNames(t testing.TB, path string) []string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func writeFile(t testing.TB, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// listDir returns the names in dir, sorted.
func listDir(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

const catalogHeader = "parameter_name,parameter_rank,from_name,from_model_name,is_sample_dim\n"

const metadataUPR1 = `{"ModelName":"UP","Name":"R1","SubCount":2,"LangCode":"EN"}`

// buildFixture is a work directory holding a run archive and a catalog.
type buildFixture struct {
	Dir     string
	Catalog string
}

func newBuildFixture(t *testing.T, catalogRows string, entries []zipEntry) buildFixture {
	t.Helper()

	dir := t.TempDir()
	catalog := filepath.Join(dir, "imports.csv")
	writeFile(t, catalog, catalogHeader+catalogRows)
	writeZip(t, filepath.Join(dir, "UP.run.R1.zip"), entries)
	return buildFixture{Dir: dir, Catalog: catalog}
}

func (f buildFixture) request(keep bool) BuildRequest {
	return BuildRequest{
		ImportsPath: f.Catalog,
		Upstream:    "UP",
		Run:         "R1",
		Downstream:  "DOWN",
		WorkDir:     f.Dir,
		KeepAllSubs: keep,
	}
}

// crlf converts "\n" line endings to "\r\n".
func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}
