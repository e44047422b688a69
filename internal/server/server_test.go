package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/history"
	"github.com/dyike/AnalystCouncil/internal/logger"
	"github.com/dyike/AnalystCouncil/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBackend struct {
	subjects []string
	records  []models.ReportRecord
	histErr  error
	limit    int
}

func (f *fakeBackend) Analyze(ctx context.Context, subject string, requireApproval bool) (*models.CouncilReport, error) {
	if requireApproval {
		return nil, council.ErrNoApprover
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", council.ErrInvalidSubject)
	}
	f.subjects = append(f.subjects, subject)
	return &models.CouncilReport{
		ID:           "r1",
		Subject:      subject,
		SystemStatus: models.SystemAllOK,
		Chair:        models.AnalysisResult{Status: models.StatusOK, ModelUsed: "m", Analysis: "verdict"},
		Timestamp:    time.Now(),
	}, nil
}

func (f *fakeBackend) Recent(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	f.limit = limit
	return f.records, f.histErr
}

func (f *fakeBackend) Members() ([]models.AgentIdentity, models.AgentIdentity) {
	return []models.AgentIdentity{{ID: "warren_buffett", Name: "Warren Buffett"}}, models.AgentIdentity{ID: "chairman"}
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, New(&fakeBackend{}, logger.Discard()), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["status"] != "ok" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestAnalyzeReturnsReport(t *testing.T) {
	backend := &fakeBackend{}
	w := do(t, New(backend, logger.Discard()), http.MethodPost, "/api/analyze", map[string]any{"subject": "AAPL"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d body %s", w.Code, w.Body.String())
	}
	var report models.CouncilReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Subject != "AAPL" || report.SystemStatus != models.SystemAllOK || report.Chair.Analysis != "verdict" {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(backend.subjects) != 1 {
		t.Fatalf("expected one analysis, got %d", len(backend.subjects))
	}
}

func TestAnalyzeRejectsApprovalAndBadInput(t *testing.T) {
	backend := &fakeBackend{}
	s := New(backend, logger.Discard())

	if w := do(t, s, http.MethodPost, "/api/analyze", map[string]any{"subject": "AAPL", "require_approval": true}); w.Code != http.StatusBadRequest {
		t.Fatalf("require_approval: Status = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/api/analyze", map[string]any{"subject": ""}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty subject: Status = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: Status = %d", w.Code)
	}
	if len(backend.subjects) != 0 {
		t.Fatalf("no analysis should run, got %v", backend.subjects)
	}
}

func TestHistory(t *testing.T) {
	backend := &fakeBackend{records: []models.ReportRecord{{ID: "r1", Subject: "AAPL"}}}
	s := New(backend, logger.Discard())

	w := do(t, s, http.MethodGet, "/api/history?limit=5", nil)
	if w.Code != http.StatusOK || backend.limit != 5 {
		t.Fatalf("Status = %d limit = %d", w.Code, backend.limit)
	}
	var resp struct {
		Reports []models.ReportRecord `json:"reports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Reports) != 1 {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	if w := do(t, s, http.MethodGet, "/api/history?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: Status = %d", w.Code)
	}

	backend.histErr = history.ErrDisabled
	if w := do(t, s, http.MethodGet, "/api/history", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled history: Status = %d", w.Code)
	}
	backend.histErr = errors.New("db locked")
	if w := do(t, s, http.MethodGet, "/api/history", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing history: Status = %d", w.Code)
	}
}

func TestMembers(t *testing.T) {
	w := do(t, New(&fakeBackend{}, logger.Discard()), http.MethodGet, "/api/council", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("warren_buffett")) {
		t.Fatalf("Status = %d body %s", w.Code, w.Body.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(&fakeBackend{}, logger.Discard()).Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
