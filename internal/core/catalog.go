package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Required columns of the mapping catalog.
const (
	CatalogParameterName = "parameter_name"
	CatalogParameterRank = "parameter_rank"
	CatalogFromName      = "from_name"
	CatalogFromModelName = "from_model_name"
	CatalogIsSampleDim   = "is_sample_dim"
)

var requiredCatalogColumns = []string{
	CatalogParameterName,
	CatalogParameterRank,
	CatalogFromName,
	CatalogFromModelName,
	CatalogIsSampleDim,
}

// LoadCatalog reads the mapping catalog at path.
func LoadCatalog(path string) ([]MappingEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &InputError{Kind: InputCatalog, Path: path, Err: err}
		}
		return nil, fmt.Errorf("open mapping catalog: %w", err)
	}
	defer f.Close()

	return ReadCatalog(path, f)
}

// ReadCatalog decodes mapping entries from r. name is used in error messages.
// Entries for every model are returned; filtering by upstream model is the
// caller's concern.
func ReadCatalog(name string, r io.Reader) ([]MappingEntry, error) {
	cr := csv.NewReader(NewEntryReader(r))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &CatalogError{Path: name, Column: CatalogParameterName, Err: ErrMissingColumn}
	}
	if err != nil {
		return nil, &CatalogError{Path: name, Err: err}
	}

	idx := MakeHeaderIndex(header)
	for _, col := range requiredCatalogColumns {
		if _, ok := idx[col]; !ok {
			return nil, &CatalogError{Path: name, Column: col, Err: ErrMissingColumn}
		}
	}

	var entries []MappingEntry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &CatalogError{Path: name, Err: err}
		}
		line, _ := cr.FieldPos(0)

		entry, err := decodeMappingEntry(idx, row)
		if err != nil {
			var ce *CatalogError
			if errors.As(err, &ce) {
				ce.Path = name
				ce.Line = line
			}
			return nil, err
		}
		entry.Line = line
		entries = append(entries, entry)
	}

	return entries, nil
}

// decodeMappingEntry builds one entry by column name. Every required column
// must be present in the row; only is_sample_dim tolerates an empty value.
func decodeMappingEntry(idx HeaderIndex, row []string) (MappingEntry, error) {
	get := func(col string) (string, error) {
		v, ok := idx.Cell(row, col)
		if !ok {
			return "", &CatalogError{Column: col, Err: errors.New("field is missing")}
		}
		return v, nil
	}

	var (
		entry MappingEntry
		err   error
		raw   string
	)

	if entry.ParameterName, err = get(CatalogParameterName); err != nil {
		return MappingEntry{}, err
	}
	if strings.TrimSpace(entry.ParameterName) == "" {
		return MappingEntry{}, &CatalogError{Column: CatalogParameterName, Err: errors.New("field is empty")}
	}

	if raw, err = get(CatalogParameterRank); err != nil {
		return MappingEntry{}, err
	}
	if entry.ParameterRank, err = ParseInt(raw); err != nil {
		return MappingEntry{}, &CatalogError{Column: CatalogParameterRank, Err: fmt.Errorf("%q is not an integer", raw)}
	}
	if entry.ParameterRank < 0 {
		return MappingEntry{}, &CatalogError{Column: CatalogParameterRank, Err: fmt.Errorf("rank %d is negative", entry.ParameterRank)}
	}

	if entry.FromName, err = get(CatalogFromName); err != nil {
		return MappingEntry{}, err
	}
	if strings.TrimSpace(entry.FromName) == "" {
		return MappingEntry{}, &CatalogError{Column: CatalogFromName, Err: errors.New("field is empty")}
	}

	if entry.FromModelName, err = get(CatalogFromModelName); err != nil {
		return MappingEntry{}, err
	}

	if raw, err = get(CatalogIsSampleDim); err != nil {
		return MappingEntry{}, err
	}
	entry.IsSampleDim = ParseFlag(raw)
	if entry.IsSampleDim && entry.ParameterRank < 1 {
		return MappingEntry{}, &CatalogError{Column: CatalogIsSampleDim, Err: errors.New("sample dimension requires rank of at least 1")}
	}

	return entry, nil
}

// SelectModel returns the entries of model in catalog order and the number of
// entries that belong to other models. A parameter name may be mapped only
// once per model; a repeat is a CatalogError at the line of the repeat.
func SelectModel(name string, entries []MappingEntry, model string) ([]MappingEntry, int, error) {
	var (
		selected []MappingEntry
		skipped  int
	)
	seen := make(map[string]int)
	for _, entry := range entries {
		if entry.FromModelName != model {
			skipped++
			continue
		}
		if first, dup := seen[entry.ParameterName]; dup {
			return nil, 0, &CatalogError{
				Path:   name,
				Line:   entry.Line,
				Column: CatalogParameterName,
				Err:    fmt.Errorf("parameter %s is already mapped on line %d", entry.ParameterName, first),
			}
		}
		seen[entry.ParameterName] = entry.Line
		selected = append(selected, entry)
	}
	return selected, skipped, nil
}
