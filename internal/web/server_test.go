package web

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/importset/internal/config"
	"github.com/JonMunkholm/importset/internal/core"
)

// memHistory keeps recorded builds in memory, newest first.
type memHistory struct {
	records []core.BuildRecord
	listErr error
}

func (m *memHistory) RecordBuild(ctx context.Context, rec core.BuildRecord) error {
	m.records = append([]core.BuildRecord{rec}, m.records...)
	return nil
}

func (m *memHistory) ListBuilds(ctx context.Context, limit int) ([]core.BuildRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

// newWorkDir writes a catalog and the run archive UP.run.R1.zip.
func newWorkDir(t *testing.T) (dir, catalog string) {
	t.Helper()
	dir = t.TempDir()

	catalog = filepath.Join(dir, "imports.csv")
	body := "parameter_name,parameter_rank,from_name,from_model_name,is_sample_dim\nInc,1,Incidence,UP,FALSE\n"
	if err := os.WriteFile(catalog, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Create(filepath.Join(dir, "UP.run.R1.zip"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"R1/UP.run.R1.json": `{"ModelName":"UP","Name":"R1","SubCount":1,"LangCode":"EN"}`,
		"R1/Incidence.csv":  "sub_id,Dim0,acc_value\n0,A,10\n",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, body)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return dir, catalog
}

func newTestServer(t *testing.T, history core.HistoryStore, mutate func(*config.Config)) (*Server, string) {
	t.Helper()
	dir, catalog := newWorkDir(t)

	cfg := &config.Config{
		Build:  config.BuildConfig{WorkDir: dir, ImportsPath: catalog},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
	}
	if mutate != nil {
		mutate(cfg)
	}

	opts := []core.ServiceOption{core.WithLimiter(core.NewBuildLimiter(2, time.Second))}
	if history != nil {
		opts = append(opts, core.WithHistory(history))
	}
	return NewServer(core.NewService(core.NewBuilder(0), opts...), cfg), dir
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.MaxBuilds != 2 || resp.HistoryEnabled {
		t.Errorf("health = %+v", resp)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestCreateSet(t *testing.T) {
	hist := &memHistory{}
	s, dir := newTestServer(t, hist, nil)

	rec := do(t, s, http.MethodPost, "/api/sets", `{"upstream":"UP","run":"R1","downstream":"DOWN"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp CreateSetResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Parameters != 1 || resp.RowsWritten != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Summary != "1 downstream DOWN parameters created from upstream UP tables" {
		t.Errorf("summary = %q", resp.Summary)
	}
	if _, err := os.Stat(filepath.Join(dir, "DOWN.set.R1.zip")); err != nil {
		t.Errorf("output archive: %v", err)
	}
	if len(hist.records) != 1 || hist.records[0].Status != core.BuildSucceeded {
		t.Errorf("history = %+v", hist.records)
	}
}

func TestCreateSet_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantCode string
	}{
		{"malformed body", `{"upstream":`, http.StatusBadRequest, "IN005"},
		{"unknown field", `{"upstream":"UP","run":"R1","downstream":"DOWN","imports":"/etc"}`, http.StatusBadRequest, "IN005"},
		{"missing names", `{"upstream":"UP"}`, http.StatusBadRequest, "IN005"},
		{"path in name", `{"upstream":"UP","run":"../R1","downstream":"DOWN"}`, http.StatusBadRequest, "IN005"},
		{"run archive missing", `{"upstream":"UP","run":"R2","downstream":"DOWN"}`, http.StatusNotFound, "IN003"},
		{"wrong upstream model", `{"upstream":"OTHER","run":"R1","downstream":"DOWN"}`, http.StatusNotFound, "IN003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil, nil)

			rec := do(t, s, http.MethodPost, "/api/sets", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}

			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateSet_NoCatalogConfigured(t *testing.T) {
	s, _ := newTestServer(t, nil, func(c *config.Config) { c.Build.ImportsPath = "" })

	rec := do(t, s, http.MethodPost, "/api/sets", `{"upstream":"UP","run":"R1","downstream":"DOWN"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCreateSet_RequiresAPIKey(t *testing.T) {
	s, _ := newTestServer(t, nil, func(c *config.Config) {
		c.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	})

	rec := do(t, s, http.MethodPost, "/api/sets", `{"upstream":"UP","run":"R1","downstream":"DOWN"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sets", strings.NewReader(`{"upstream":"UP","run":"R1","downstream":"DOWN"}`))
	req.Header.Set("X-API-Key", "secret")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Errorf("status with key = %d, want 201", rr.Code)
	}

	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should not need a key, status = %d", rec.Code)
	}
}

func TestListBuilds(t *testing.T) {
	t.Run("history disabled", func(t *testing.T) {
		s, _ := newTestServer(t, nil, nil)
		rec := do(t, s, http.MethodGet, "/api/builds", "")
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", rec.Code)
		}
	})

	t.Run("limit applied", func(t *testing.T) {
		hist := &memHistory{records: []core.BuildRecord{{ID: "b3"}, {ID: "b2"}, {ID: "b1"}}}
		s, _ := newTestServer(t, hist, nil)

		rec := do(t, s, http.MethodGet, "/api/builds?limit=2", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Builds []core.BuildRecord `json:"builds"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Builds) != 2 || resp.Builds[0].ID != "b3" {
			t.Errorf("builds = %+v", resp.Builds)
		}
	})

	t.Run("empty history is an empty list", func(t *testing.T) {
		s, _ := newTestServer(t, &memHistory{}, nil)
		rec := do(t, s, http.MethodGet, "/api/builds", "")
		if !strings.Contains(rec.Body.String(), `"builds":[]`) {
			t.Errorf("body = %s", rec.Body)
		}
	})
}

func TestDashboard(t *testing.T) {
	t.Run("lists builds escaped", func(t *testing.T) {
		hist := &memHistory{records: []core.BuildRecord{
			{ID: "b1", Upstream: "UP", Run: "<R1>", Downstream: "DOWN", Status: core.BuildFailed, ErrorCode: "TBL001"},
		}}
		s, _ := newTestServer(t, hist, nil)

		rec := do(t, s, http.MethodGet, "/", "")
		body := rec.Body.String()
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		for _, want := range []string{"<table>", "&lt;R1&gt;", "TBL001", `class="failed"`} {
			if !strings.Contains(body, want) {
				t.Errorf("dashboard missing %q", want)
			}
		}
	})

	t.Run("history disabled", func(t *testing.T) {
		s, _ := newTestServer(t, nil, nil)
		body := do(t, s, http.MethodGet, "/", "").Body.String()
		if !strings.Contains(body, "not configured") {
			t.Errorf("dashboard should say history is not configured:\n%s", body)
		}
	})

	t.Run("history failure still renders", func(t *testing.T) {
		s, _ := newTestServer(t, &memHistory{listErr: errors.New("connection refused")}, nil)
		rec := do(t, s, http.MethodGet, "/", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `role="alert"`) {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyBuilds, http.StatusServiceUnavailable},
		{core.ErrHistoryDisabled, http.StatusNotImplemented},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&core.InputError{Kind: core.InputRequest}, http.StatusBadRequest},
		{&core.InputError{Kind: core.InputCatalog}, http.StatusNotFound},
		{&core.InputError{Kind: core.InputArchiveInvalid}, http.StatusUnprocessableEntity},
		{&core.MetadataCountError{Count: 0}, http.StatusUnprocessableEntity},
		{&core.NoTableMatchError{}, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
