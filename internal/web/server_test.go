package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/planops/capacity/internal/capacity"
	"github.com/planops/capacity/internal/config"
	"github.com/planops/capacity/internal/core"
	"github.com/planops/capacity/internal/ledger"
)

func newTestServer() (*Server, *ledger.Memory) {
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
	}

	mem := ledger.NewMemory()
	engine := capacity.New(mem)
	importer := core.NewImporter(mem, engine, nil)
	return NewServer(cfg, importer, engine, mem), mem
}

func doRequest(t *testing.T, s *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestListTemplates(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/api/templates", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var templates []templateInfo
	if err := json.NewDecoder(rec.Body).Decode(&templates); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(templates) != 4 {
		t.Errorf("templates = %d, want 4", len(templates))
	}
}

func TestDownloadTemplate(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/api/template/resources", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "ResourceName") {
		t.Errorf("template body missing header: %q", rec.Body.String())
	}
}

func TestDownloadTemplate_UnknownKind(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/api/template/payroll", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "IMP004" {
		t.Errorf("code = %q, want IMP004", resp.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	s, mem := newTestServer()

	csv := "Roadmap_ResourceID,ResourceName,Email,WorkArea,ActivityType_CAP,ActivityType_OPX,Contract Type,EmployeeID\n" +
		"R1,Jane Smith,jane@example.com,Payments,N3_CAP,Nil,FTE,E100\n"

	rec := doRequest(t, s, http.MethodPost, "/api/import/resources", "text/csv", csv)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Imported != 1 || result.Failed != 0 {
		t.Errorf("imported/failed = %d/%d", result.Imported, result.Failed)
	}
	if mem.ResourceCount() != 1 {
		t.Errorf("resource count = %d, want 1", mem.ResourceCount())
	}
}

func TestImportEndpoint_HeaderMismatch(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/api/import/resources", "text/csv", "Wrong,Header\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "IMP001" {
		t.Errorf("code = %q, want IMP001", resp.Code)
	}
}

func TestImportEndpoint_FiscalYearRequired(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodPost, "/api/import/labour-rates", "text/csv", "x\n")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCommitmentAndCapacityFlow(t *testing.T) {
	s, mem := newTestServer()

	csv := "Roadmap_ResourceID,ResourceName,Email,WorkArea,ActivityType_CAP,ActivityType_OPX,Contract Type,EmployeeID\n" +
		"R1,Jane Smith,,,,,FTE,E100\n"
	if rec := doRequest(t, s, http.MethodPost, "/api/import/resources", "text/csv", csv); rec.Code != http.StatusOK {
		t.Fatalf("import status = %d", rec.Code)
	}

	body := `{"resourceName":"Jane Smith","periodStart":"01-09-2025","periodEnd":"07-09-2025","frequency":"PerDay","hoursPerUnit":"6"}`
	rec := doRequest(t, s, http.MethodPost, "/api/commitments", "application/json", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("commitment status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snap capacityResponse
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.TotalAvailableHours != "42" {
		t.Errorf("total = %s, want 42", snap.TotalAvailableHours)
	}

	// Allocate more than available; remaining goes negative, not an error.
	res, err := mem.FindResourceByName(context.Background(), "Jane Smith")
	if err != nil {
		t.Fatalf("FindResourceByName: %v", err)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/resources/"+res.ID+"/allocations",
		"application/json", `{"hours":"50","source":"roadmap"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocation status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/resources/"+res.ID+"/capacity", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("capacity status = %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.RemainingCapacity != "-8" {
		t.Errorf("remaining = %s, want -8", snap.RemainingCapacity)
	}
	if !snap.OverAllocated {
		t.Error("expected overAllocated = true")
	}
}

func TestCommitment_InvalidPeriod(t *testing.T) {
	s, _ := newTestServer()

	csv := "Roadmap_ResourceID,ResourceName,Email,WorkArea,ActivityType_CAP,ActivityType_OPX,Contract Type,EmployeeID\n" +
		"R1,Jane Smith,,,,,FTE,E100\n"
	if rec := doRequest(t, s, http.MethodPost, "/api/import/resources", "text/csv", csv); rec.Code != http.StatusOK {
		t.Fatalf("import status = %d", rec.Code)
	}

	// End before start.
	body := `{"resourceName":"Jane Smith","periodStart":"07-09-2025","periodEnd":"01-09-2025","frequency":"PerDay","hoursPerUnit":"6"}`
	rec := doRequest(t, s, http.MethodPost, "/api/commitments", "application/json", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "CAP001" {
		t.Errorf("code = %q, want CAP001", resp.Code)
	}
}

func TestCapacity_UnknownResource(t *testing.T) {
	s, _ := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/api/resources/nope/capacity", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestImportRunsEndpoint(t *testing.T) {
	s, _ := newTestServer()

	csv := "Roadmap_ResourceID,ResourceName,Email,WorkArea,ActivityType_CAP,ActivityType_OPX,Contract Type,EmployeeID\n" +
		"R1,Jane Smith,,,,,FTE,E100\n"
	if rec := doRequest(t, s, http.MethodPost, "/api/import/resources", "text/csv", csv); rec.Code != http.StatusOK {
		t.Fatalf("import status = %d", rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/import-runs", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var runs []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runs))
	}
}
