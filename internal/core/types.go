// Package core provides the business logic for building downstream parameter
// sets from upstream run archives.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"path/filepath"
	"strconv"
	"time"
)

// Encoding identifies which of the two known CSV table layouts a table uses.
type Encoding string

const (
	EncodingExpression  Encoding = "expression"
	EncodingAccumulator Encoding = "accumulator"
	EncodingUnknown     Encoding = "unknown"
)

// Column names used by upstream tables and downstream parameter files.
const (
	ColSubID      = "sub_id"
	ColAccID      = "acc_id"
	ColAccValue   = "acc_value"
	ColValue      = "Value"
	ColExprName   = "expr_name"
	ColExprValue  = "expr_value"
	ColParamValue = "param_value"
)

// DefaultLangCode is used when the run metadata carries no LangCode.
const DefaultLangCode = "EN"

// DefaultSubCount is used when the run metadata carries no SubCount.
const DefaultSubCount = 1

// RunMetadata is the identity and shape of one upstream run, read from the
// single JSON entry of the run archive.
type RunMetadata struct {
	ModelName string
	RunName   string
	SubCount  int
	LangCode  string
}

// MappingEntry is one row of the mapping catalog.
type MappingEntry struct {
	ParameterName string // Downstream parameter to create
	ParameterRank int    // Number of dimensions of the downstream parameter
	FromName      string // Upstream table the values come from
	FromModelName string // Upstream model owning the table
	IsSampleDim   bool   // One parameter dimension holds the replication id
	Line          int    // Catalog line the entry was read from
}

// TableRank returns the number of dimension slots filled from the source
// table. The replication axis is not counted twice for sample-dim entries.
func (m MappingEntry) TableRank() int {
	if m.IsSampleDim {
		return max(m.ParameterRank-1, 0)
	}
	return m.ParameterRank
}

// SourceTable is one located CSV entry of the run archive.
// It only lives while a single MappingEntry is processed.
type SourceTable struct {
	Entry    string     // Archive entry name
	Encoding Encoding   // Detected from the first line
	Header   []string   // Parsed header, BOM removed
	Records  [][]string // Data records in file order
}

// CanonicalRow is the normalized shape of every output row:
// sub_id, Dim0..DimN-1, param_value.
type CanonicalRow struct {
	ReplicationID int
	Dims          []string
	Value         string
}

// Fields returns the row as CSV fields in output column order.
func (r CanonicalRow) Fields() []string {
	out := make([]string, 0, len(r.Dims)+2)
	out = append(out, strconv.Itoa(r.ReplicationID))
	out = append(out, r.Dims...)
	return append(out, r.Value)
}

// ParamText is a language-specific description of an output parameter.
type ParamText struct {
	LangCode string `json:"LangCode"`
	Descr    string `json:"Descr"`
}

// OutputParameterDescriptor describes one parameter of the output set.
type OutputParameterDescriptor struct {
	Name     string      `json:"Name"`
	Subcount int         `json:"Subcount"`
	Txt      []ParamText `json:"Txt"`
}

// OutputSet is the descriptor serialized as the output archive's JSON entry.
type OutputSet struct {
	ModelName  string                      `json:"ModelName"`
	Name       string                      `json:"Name"`
	IsReadonly bool                        `json:"IsReadonly"`
	Param      []OutputParameterDescriptor `json:"Param"`
}

// BuildRequest holds the invocation parameters of one build.
type BuildRequest struct {
	ID          string // Build ID; assigned when empty
	ImportsPath string // Mapping catalog CSV
	Upstream    string // Upstream model name
	Run         string // Upstream run name
	Downstream  string // Downstream model name
	WorkDir     string // Directory holding the run archive and receiving the set archive
	KeepAllSubs bool   // Propagate every replication instead of only replication 0
}

// RunArchiveName returns the expected run archive file name.
func (r BuildRequest) RunArchiveName() string {
	return r.Upstream + ".run." + r.Run + ".zip"
}

// RunArchivePath returns the run archive path inside the working directory.
func (r BuildRequest) RunArchivePath() string {
	return filepath.Join(r.WorkDir, r.RunArchiveName())
}

// Key identifies the staging tree and output archive a request writes.
// Requests with the same key must not run concurrently.
func (r BuildRequest) Key() string {
	return filepath.Join(r.WorkDir, r.Downstream+".set."+r.Run)
}

// BuildResult summarizes a completed build.
type BuildResult struct {
	BuildID     string
	Upstream    string
	Run         string
	Downstream  string
	SetName     string
	OutputPath  string
	Parameters  int // Mapping entries processed into parameters
	Skipped     int // Mapping entries belonging to other models
	RowsWritten int
	RowsDropped int // Rows removed by the replication filter
	RowsInvalid int // Malformed rows skipped
	Warnings    []string
	PublishedTo string
	StartedAt   time.Time
	Duration    time.Duration
}

// Summary returns the human-readable line reported on success.
func (r BuildResult) Summary() string {
	return strconv.Itoa(r.Parameters) + " downstream " + r.Downstream +
		" parameters created from upstream " + r.Upstream + " tables"
}

// BuildStatus is the terminal state of a recorded build.
type BuildStatus string

const (
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// BuildRecord is a build as kept in the history store.
type BuildRecord struct {
	ID          string      `json:"id"`
	Upstream    string      `json:"upstream"`
	Run         string      `json:"run"`
	Downstream  string      `json:"downstream"`
	KeepAllSubs bool        `json:"keepAllSubs"`
	Status      BuildStatus `json:"status"`
	Parameters  int         `json:"parameters"`
	OutputPath  string      `json:"outputPath,omitempty"`
	PublishedTo string      `json:"publishedTo,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorCode   string      `json:"errorCode,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
}
