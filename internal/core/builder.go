package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importset/internal/logging"
)

// Builder turns one upstream run archive into one downstream parameter set.
// A Builder holds no per-build state and may be shared.
type Builder struct {
	// MaxEntryBytes bounds the decoded size of any archive entry
	// (<= 0 means DefaultMaxEntryBytes).
	MaxEntryBytes int64
}

// NewBuilder creates a Builder.
func NewBuilder(maxEntryBytes int64) *Builder {
	return &Builder{MaxEntryBytes: maxEntryBytes}
}

// Validate checks the request fields that do not touch the file system.
func (r BuildRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"imports", r.ImportsPath},
		{"upstream", r.Upstream},
		{"run", r.Run},
		{"downstream", r.Downstream},
	}

	var errs []error
	for _, f := range fields {
		switch {
		case strings.TrimSpace(f.value) == "":
			errs = append(errs, fmt.Errorf("%s is required", f.name))
		case f.name == "imports":
		case strings.ContainsAny(f.value, `/\`):
			errs = append(errs, fmt.Errorf("%s %q must not contain a path separator", f.name, f.value))
		case f.value == "." || f.value == "..":
			errs = append(errs, fmt.Errorf("%s %q is not a valid name", f.name, f.value))
		}
	}
	if len(errs) > 0 {
		return &InputError{Kind: InputRequest, Err: errors.Join(errs...)}
	}
	return nil
}

// checkInputs verifies the catalog, working directory and run archive exist,
// in that order.
func checkInputs(req BuildRequest) error {
	if _, err := os.Stat(req.ImportsPath); err != nil {
		return &InputError{Kind: InputCatalog, Path: req.ImportsPath, Err: err}
	}

	info, err := os.Stat(req.WorkDir)
	if err != nil {
		return &InputError{Kind: InputWorkDir, Path: req.WorkDir, Err: err}
	}
	if !info.IsDir() {
		return &InputError{Kind: InputWorkDir, Path: req.WorkDir, Err: fs.ErrInvalid}
	}

	path := req.RunArchivePath()
	info, err = os.Stat(path)
	if err != nil {
		return &InputError{Kind: InputArchive, Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &InputError{Kind: InputArchive, Path: path, Err: fs.ErrInvalid}
	}
	return nil
}

// ParameterSubcount returns the replication count declared for a parameter.
// Sample-dimension parameters fold replications into a dimension, so they
// always declare one.
func ParameterSubcount(entry MappingEntry, keepAllSubs bool, runSubCount int) int {
	switch {
	case entry.IsSampleDim:
		return 1
	case keepAllSubs:
		return runSubCount
	default:
		return 1
	}
}

// NewParameterDescriptor describes the parameter built from entry.
func NewParameterDescriptor(entry MappingEntry, req BuildRequest, md RunMetadata) OutputParameterDescriptor {
	return OutputParameterDescriptor{
		Name:     entry.ParameterName,
		Subcount: ParameterSubcount(entry, req.KeepAllSubs, md.SubCount),
		Txt: []ParamText{{
			LangCode: md.LangCode,
			Descr:    req.Upstream + ": " + req.Run,
		}},
	}
}

// Build runs one build. Any error is fatal for the whole build; per-row
// problems and unknown table formats are reported as warnings in the result.
//
// The staging tree is removed before Build returns on every path. No output
// archive exists unless Build returns a nil error.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.WorkDir == "" {
		req.WorkDir = "."
	}

	logger := logging.WithFields(ctx,
		"build_id", req.ID,
		"upstream", req.Upstream,
		"run", req.Run,
		"downstream", req.Downstream,
	)

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := checkInputs(req); err != nil {
		return nil, err
	}

	archive, err := OpenArchive(req.RunArchivePath(), b.MaxEntryBytes)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	names := archive.Names()
	logger.Debug("opened run archive", "path", archive.Path(), "members", len(names))

	md, err := LoadRunMetadata(archive, req.Upstream, req.Run)
	if err != nil {
		return nil, err
	}
	logger.Debug("run metadata",
		"model_name", md.ModelName,
		"run_name", md.RunName,
		"sub_count", md.SubCount,
		"lang_code", md.LangCode,
	)

	result := &BuildResult{
		BuildID:    req.ID,
		Upstream:   req.Upstream,
		Run:        req.Run,
		Downstream: req.Downstream,
		SetName:    req.Run,
		StartedAt:  start,
	}
	if _, err := md.LanguageTag(); err != nil {
		result.warn(logger, fmt.Sprintf("run language code %q is not a valid language tag", md.LangCode))
	}

	entries, err := LoadCatalog(req.ImportsPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded mapping catalog", "path", req.ImportsPath, "entries", len(entries))

	entries, result.Skipped, err = SelectModel(req.ImportsPath, entries, req.Upstream)
	if err != nil {
		return nil, err
	}

	asm, err := NewAssembler(SetLayout{WorkDir: req.WorkDir, Downstream: req.Downstream, SetName: req.Run})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := asm.Cleanup(); err != nil {
			logger.Warn("staging cleanup failed", "error", err)
		}
	}()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled: %w", err)
		}
		if err := b.buildParameter(logger, archive, names, req, md, entry, asm, result); err != nil {
			return nil, err
		}
		result.Parameters++
	}

	out, err := asm.Finish()
	if err != nil {
		return nil, err
	}

	result.OutputPath = out
	result.Duration = time.Since(start)
	logger.Info("set created",
		"output", out,
		"parameters", result.Parameters,
		"skipped", result.Skipped,
		"rows", result.RowsWritten,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// buildParameter locates, normalizes and transforms the table of one entry
// and adds it to the set.
func (b *Builder) buildParameter(
	logger *slog.Logger,
	archive *Archive,
	names []string,
	req BuildRequest,
	md RunMetadata,
	entry MappingEntry,
	asm *Assembler,
	result *BuildResult,
) error {
	plog := logger.With("parameter", entry.ParameterName, "table", entry.FromName)
	plog.Debug("creating parameter", "rank", entry.ParameterRank, "sample_dim", entry.IsSampleDim)

	chosen, candidates, err := LocateTable(names, entry)
	if err != nil {
		return err
	}
	if len(candidates) > 1 {
		plog.Debug("multiple table matches", "matches", len(candidates), "chosen", chosen.Entry)
	}

	text, err := archive.ReadText(chosen.Entry)
	if err != nil {
		return err
	}

	table, malformed, err := ParseTable(chosen.Entry, text)
	if err != nil {
		return err
	}
	plog.Debug("read table",
		"entry", chosen.Entry,
		"records", len(table.Records),
		"format", table.Encoding,
		"in_header", strings.Join(table.Header, ","),
	)
	if malformed > 0 {
		result.RowsInvalid += malformed
		result.warn(plog, fmt.Sprintf("%d unparsable lines skipped in %s", malformed, chosen.Entry))
	}

	switch table.Encoding {
	case EncodingExpression:
		plog.Debug("converting expression table to accumulator format")
		table = NormalizeTable(table)
	case EncodingUnknown:
		result.warn(plog, fmt.Sprintf("unknown CSV format for %s, attempting to process as accumulator format", entry.FromName))
	}

	tr := RowTransformer{Entry: entry, KeepAllSubs: req.KeepAllSubs}
	rows, stats := tr.TransformTable(table, func(rec []string, err error) {
		plog.Debug("skipping malformed line", "line", strings.Join(rec, ","), "error", err)
	})

	if table.Encoding == EncodingUnknown {
		if misfit := stats.Malformed + stats.Short; misfit > 0 {
			result.warn(plog, fmt.Sprintf("%d rows of %s do not fit the accumulator layout", misfit, entry.FromName))
		}
	}

	if err := asm.AddParameter(NewParameterDescriptor(entry, req, md), entry.ParameterRank, rows); err != nil {
		return err
	}

	result.RowsWritten += stats.Written
	result.RowsDropped += stats.Dropped
	result.RowsInvalid += stats.Malformed
	plog.Debug("parameter written", "rows", stats.Written, "dropped", stats.Dropped, "malformed", stats.Malformed)
	return nil
}

func (r *BuildResult) warn(logger *slog.Logger, msg string) {
	r.Warnings = append(r.Warnings, msg)
	logger.Warn(msg)
}
