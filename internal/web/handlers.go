package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/importset/internal/core"
	"github.com/JonMunkholm/importset/internal/logging"
	"github.com/JonMunkholm/importset/internal/web/templates"
)

// MaxRequestSize bounds the body of a build request.
const MaxRequestSize = 64 * 1024

// dashboardBuilds is how many recent builds the dashboard lists.
const dashboardBuilds = 25

// CreateSetRequest is the body of POST /api/sets.
type CreateSetRequest struct {
	Upstream   string `json:"upstream"`
	Run        string `json:"run"`
	Downstream string `json:"downstream"`
	Keep       *bool  `json:"keep,omitempty"` // Server default when omitted
}

// CreateSetResponse reports a finished build.
type CreateSetResponse struct {
	BuildID     string   `json:"buildId"`
	Summary     string   `json:"summary"`
	OutputPath  string   `json:"outputPath"`
	PublishedTo string   `json:"publishedTo,omitempty"`
	Parameters  int      `json:"parameters"`
	Skipped     int      `json:"skipped"`
	RowsWritten int      `json:"rowsWritten"`
	RowsDropped int      `json:"rowsDropped"`
	RowsInvalid int      `json:"rowsInvalid"`
	Warnings    []string `json:"warnings"`
	DurationMS  int64    `json:"durationMs"`
}

func newCreateSetResponse(r *core.BuildResult) CreateSetResponse {
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return CreateSetResponse{
		BuildID:     r.BuildID,
		Summary:     r.Summary(),
		OutputPath:  r.OutputPath,
		PublishedTo: r.PublishedTo,
		Parameters:  r.Parameters,
		Skipped:     r.Skipped,
		RowsWritten: r.RowsWritten,
		RowsDropped: r.RowsDropped,
		RowsInvalid: r.RowsInvalid,
		Warnings:    warnings,
		DurationMS:  r.Duration.Milliseconds(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveBuilds   int    `json:"activeBuilds"`
	MaxBuilds      int    `json:"maxBuilds,omitempty"`
	HistoryEnabled bool   `json:"historyEnabled"`
}

// handleHealth reports liveness and build slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", HistoryEnabled: s.service.HistoryEnabled()}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.ActiveBuilds = st.Active
		resp.MaxBuilds = st.MaxConcurrent
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateSet runs one build synchronously and reports its result.
func (s *Server) handleCreateSet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)

	var body CreateSetRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.respondError(w, r, &core.InputError{Kind: core.InputRequest, Err: fmt.Errorf("decode body: %w", err)}, http.StatusBadRequest)
		return
	}

	if s.build.ImportsPath == "" {
		s.respondError(w, r, errors.New("server has no mapping catalog configured"), http.StatusInternalServerError)
		return
	}

	keep := s.build.KeepAllSubs
	if body.Keep != nil {
		keep = *body.Keep
	}

	req := core.BuildRequest{
		ImportsPath: s.build.ImportsPath,
		Upstream:    body.Upstream,
		Run:         body.Run,
		Downstream:  body.Downstream,
		WorkDir:     s.build.WorkDir,
		KeepAllSubs: keep,
	}

	logging.FromContext(r.Context()).Info("build requested",
		"upstream", req.Upstream,
		"run", req.Run,
		"downstream", req.Downstream,
		"keep", req.KeepAllSubs,
	)

	result, err := s.service.Run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, newCreateSetResponse(result))
}

// handleListBuilds returns recorded builds, newest first.
func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if records == nil {
		records = []core.BuildRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"builds": records})
}

// handleDashboard renders the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := templates.DashboardData{
		WorkDir:        s.build.WorkDir,
		ImportsPath:    s.build.ImportsPath,
		HistoryEnabled: s.service.HistoryEnabled(),
		GeneratedAt:    time.Now(),
	}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		data.ActiveBuilds = st.Active
		data.MaxBuilds = st.MaxConcurrent
	}

	if data.HistoryEnabled {
		// Don't fail the page if history is unavailable
		records, err := s.service.History(ctx, dashboardBuilds)
		if err != nil {
			logging.FromContext(ctx).Warn("load build history", "error", err)
			data.HistoryError = core.MapError(err).Message
		}
		data.Builds = records
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(ctx, w); err != nil {
		slog.Error("render dashboard", "error", err)
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
