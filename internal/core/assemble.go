package core

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SetLayout names every path of one output set, relative to the working
// directory:
//
//	<down>.set.<set>/                        staging tree and archive root
//	<down>.set.<set>/set.<set>/<param>.csv   one file per parameter
//	<down>.set.<set>/<down>.set.<set>.json   descriptor
//	<down>.set.<set>.zip                     output archive
type SetLayout struct {
	WorkDir    string
	Downstream string
	SetName    string
}

// TopDir is the staging directory name and the root of the archive.
func (l SetLayout) TopDir() string {
	return l.Downstream + ".set." + l.SetName
}

// CSVDir is the parameter directory relative to the working directory.
func (l SetLayout) CSVDir() string {
	return filepath.Join(l.TopDir(), "set."+l.SetName)
}

// DescriptorName is the descriptor path relative to the working directory.
func (l SetLayout) DescriptorName() string {
	return filepath.Join(l.TopDir(), l.TopDir()+".json")
}

// ArchiveName is the output archive file name.
func (l SetLayout) ArchiveName() string {
	return l.TopDir() + ".zip"
}

// StagingPath is the absolute (workdir-joined) staging directory.
func (l SetLayout) StagingPath() string {
	return filepath.Join(l.WorkDir, l.TopDir())
}

// ArchivePath is the workdir-joined output archive path.
func (l SetLayout) ArchivePath() string {
	return filepath.Join(l.WorkDir, l.ArchiveName())
}

// Assembler owns the staging tree of one build. Callers must call Cleanup on
// every exit path; Finish does not remove the tree itself.
type Assembler struct {
	layout  SetLayout
	set     OutputSet
	written map[string]bool
	now     func() time.Time
}

// NewAssembler prepares an empty staging tree for layout, replacing any tree
// left behind under the same name.
func NewAssembler(layout SetLayout) (*Assembler, error) {
	if err := os.RemoveAll(layout.StagingPath()); err != nil {
		return nil, fmt.Errorf("remove stale staging directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(layout.WorkDir, layout.CSVDir()), 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &Assembler{
		layout: layout,
		set: OutputSet{
			ModelName:  layout.Downstream,
			Name:       layout.SetName,
			IsReadonly: true,
			Param:      []OutputParameterDescriptor{},
		},
		written: make(map[string]bool),
		now:     time.Now,
	}, nil
}

// Layout returns the paths the assembler writes to.
func (a *Assembler) Layout() SetLayout { return a.layout }

// Set returns the descriptor accumulated so far.
func (a *Assembler) Set() OutputSet { return a.set }

// AddParameter writes the parameter file for desc and appends desc to the
// descriptor. Parameter names must be plain file names and unique per set.
func (a *Assembler) AddParameter(desc OutputParameterDescriptor, rank int, rows []CanonicalRow) error {
	if err := validParameterName(desc.Name); err != nil {
		return err
	}
	if a.written[desc.Name] {
		return fmt.Errorf("parameter %s: defined more than once in mapping catalog", desc.Name)
	}

	path := filepath.Join(a.layout.WorkDir, a.layout.CSVDir(), desc.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parameter file: %w", err)
	}
	if err := WriteParameterCSV(f, rank, rows); err != nil {
		f.Close()
		return fmt.Errorf("write parameter %s: %w", desc.Name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close parameter file: %w", err)
	}

	a.written[desc.Name] = true
	a.set.Param = append(a.set.Param, desc)
	return nil
}

func validParameterName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("parameter name %q is not a valid file name", name)
	}
	return nil
}

// Finish writes the descriptor, then packages the staging tree into the
// output archive. The archive is assembled under a temporary name in the
// working directory and renamed into place once complete.
func (a *Assembler) Finish() (string, error) {
	if err := a.writeDescriptor(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(a.layout.WorkDir, "."+a.layout.ArchiveName()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create output archive: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := a.writeArchive(tmp); err != nil {
		return "", fmt.Errorf("write output archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output archive: %w", err)
	}

	out := a.layout.ArchivePath()
	if err := os.Rename(tmpName, out); err != nil {
		return "", fmt.Errorf("move output archive into place: %w", err)
	}
	committed = true
	return out, nil
}

func (a *Assembler) writeDescriptor() error {
	data, err := json.MarshalIndent(a.set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode set descriptor: %w", err)
	}
	path := filepath.Join(a.layout.WorkDir, a.layout.DescriptorName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write set descriptor: %w", err)
	}
	return nil
}

// writeArchive zips every regular file under the staging tree. Entry names
// are slash-separated paths relative to the working directory, added in
// lexical order so the same tree always yields the same listing.
func (a *Assembler) writeArchive(w io.Writer) error {
	var files []string
	err := filepath.WalkDir(a.layout.StagingPath(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	entries := make(map[string]string, len(files))
	names := make([]string, 0, len(files))
	for _, path := range files {
		rel, err := filepath.Rel(a.layout.WorkDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		entries[name] = path
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	modified := a.now()
	for _, name := range names {
		if err := addFile(zw, name, entries[name], modified); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, name, path string, modified time.Time) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Cleanup removes the staging tree. It is safe to call more than once.
func (a *Assembler) Cleanup() error {
	err := os.RemoveAll(a.layout.StagingPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}
