package core

// errors.go defines the fatal error classes of a build.
//
// Every class is a distinct type so callers can use errors.As, and every
// class maps to its own process exit status via ExitCode. Per-row problems
// and unknown table formats are never errors; they surface as warnings.

import (
	"errors"
	"fmt"
)

// Exit statuses reported by the CLI for each error class.
const (
	ExitOK       = 0
	ExitFailure  = 1 // Unclassified failure
	ExitInput    = 2 // Missing or invalid input file, directory or archive
	ExitMetadata = 3 // Run metadata count, parse or identity failure
	ExitCatalog  = 4 // Mapping catalog cannot be read
	ExitNoTable  = 5 // A mapped table is missing from the run archive
)

// InputKind identifies which input failed validation.
type InputKind string

const (
	InputCatalog        InputKind = "catalog"
	InputWorkDir        InputKind = "workdir"
	InputArchive        InputKind = "archive"
	InputArchiveInvalid InputKind = "archive_invalid"
	InputRequest        InputKind = "request"
)

// InputError reports a missing or unusable input.
type InputError struct {
	Kind InputKind
	Path string
	Err  error
}

func (e *InputError) Error() string {
	switch e.Kind {
	case InputCatalog:
		return fmt.Sprintf("model imports file %s not found", e.Path)
	case InputWorkDir:
		return fmt.Sprintf("working directory %s not found", e.Path)
	case InputArchive:
		return fmt.Sprintf("upstream run file %s not found", e.Path)
	case InputArchiveInvalid:
		return fmt.Sprintf("%s is not a valid zip file", e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("invalid request: %v", e.Err)
		}
		return "invalid request"
	}
}

func (e *InputError) Unwrap() error { return e.Err }

// MetadataCountError means the run archive does not hold exactly one JSON entry.
type MetadataCountError struct {
	Count int
}

func (e *MetadataCountError) Error() string {
	return fmt.Sprintf("%d matches for json metadata file in run zip", e.Count)
}

// MetadataParseError means the JSON metadata entry could not be decoded.
type MetadataParseError struct {
	Entry string
	Err   error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON metadata %s: %v", e.Entry, e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// IdentityMismatchError means the run archive belongs to another model or run.
type IdentityMismatchError struct {
	Field    string // "model name" or "run name"
	Expected string
	Actual   string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("incoherence between upstream %s %s and %s inside run zip %s",
		e.Field, e.Expected, e.Field, e.Actual)
}

// CatalogError reports a mapping catalog that cannot be interpreted.
type CatalogError struct {
	Path   string
	Line   int
	Column string
	Err    error
}

func (e *CatalogError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("mapping catalog %s line %d column %s: %v", e.Path, e.Line, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("mapping catalog %s column %s: %v", e.Path, e.Column, e.Err)
	default:
		return fmt.Sprintf("mapping catalog %s: %v", e.Path, e.Err)
	}
}

func (e *CatalogError) Unwrap() error { return e.Err }

// NoTableMatchError means no archive entry matches a mapped table name.
// It aborts the whole build, not just one parameter.
type NoTableMatchError struct {
	Table     string
	Parameter string
}

func (e *NoTableMatchError) Error() string {
	return fmt.Sprintf("no matches for table %s in run zip", e.Table)
}

// ErrMissingColumn is wrapped by CatalogError when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		inputErr    *InputError
		countErr    *MetadataCountError
		parseErr    *MetadataParseError
		identityErr *IdentityMismatchError
		catalogErr  *CatalogError
		noTableErr  *NoTableMatchError
	)

	switch {
	case errors.As(err, &inputErr):
		return ExitInput
	case errors.As(err, &countErr), errors.As(err, &parseErr), errors.As(err, &identityErr):
		return ExitMetadata
	case errors.As(err, &catalogErr):
		return ExitCatalog
	case errors.As(err, &noTableErr):
		return ExitNoTable
	default:
		return ExitFailure
	}
}
