package core

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Archive is a read-only view of an upstream run archive.
type Archive struct {
	path          string
	reader        *zip.ReadCloser
	files         map[string]*zip.File
	names         []string
	maxEntryBytes int64
}

// OpenArchive opens the zip at path. maxEntryBytes bounds the decoded size of
// any single entry read as text (<= 0 means DefaultMaxEntryBytes).
func OpenArchive(path string, maxEntryBytes int64) (*Archive, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Kind: InputArchive, Path: path, Err: err}
		}
		return nil, &InputError{Kind: InputArchiveInvalid, Path: path, Err: err}
	}

	a := &Archive{
		path:          path,
		reader:        reader,
		files:         make(map[string]*zip.File, len(reader.File)),
		names:         make([]string, 0, len(reader.File)),
		maxEntryBytes: maxEntryBytes,
	}
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// A repeated name stays in the listing; reads get the last copy.
		a.files[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	return a, nil
}

// Path returns the file system path the archive was opened from.
func (a *Archive) Path() string { return a.path }

// Close releases the underlying file.
func (a *Archive) Close() error {
	if a == nil || a.reader == nil {
		return nil
	}
	return a.reader.Close()
}

// Names returns the file entries in archive listing order, repeated names
// included.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// ReadBytes returns the raw bytes of an entry.
func (a *Archive) ReadBytes(name string) ([]byte, error) {
	rc, err := a.open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limit := a.maxEntryBytes
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("read %s: %w", name, ErrEntryTooLarge)
	}
	return data, nil
}

// ReadText returns an entry decoded as UTF-8 text without a byte-order mark.
func (a *Archive) ReadText(name string) (string, error) {
	rc, err := a.open(name)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	text, err := readEntryText(rc, a.maxEntryBytes)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return text, nil
}

func (a *Archive) open(name string) (io.ReadCloser, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", name, fs.ErrNotExist)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return rc, nil
}
