package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/planops/capacity/internal/core"
	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/schema"
	"github.com/shopspring/decimal"
)

// dateLayout matches the CSV templates: DD-MM-YYYY.
const dateLayout = "02-01-2006"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// templateInfo describes one import template for discovery.
type templateInfo struct {
	Kind               schema.ImportKind `json:"kind"`
	Label              string            `json:"label"`
	Header             []string          `json:"header"`
	TitleRows          int               `json:"titleRows"`
	RequiresFiscalYear bool              `json:"requiresFiscalYear"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	all := schema.All()
	out := make([]templateInfo, 0, len(all))
	for _, td := range all {
		out = append(out, templateInfo{
			Kind:               td.Kind,
			Label:              td.Label,
			Header:             td.Header,
			TitleRows:          td.TitleRows,
			RequiresFiscalYear: td.RequiresFiscalYear,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDownloadTemplate serves an empty CSV in the exact shape an import
// expects: title rows (if any), then the header. A file filled in under this
// header round-trips through the importer unchanged.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind := schema.ImportKind(chi.URLParam(r, "kind"))
	td, ok := schema.Get(kind)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownKind, kind))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(kind)+"-template.csv"))

	cw := csv.NewWriter(w)
	blank := make([]string, len(td.Header))
	for i := 0; i < td.TitleRows; i++ {
		title := blank
		if i == 0 {
			title = append([]string{td.Label}, blank[1:]...)
		}
		cw.Write(title)
	}
	cw.Write(td.Header)
	cw.Flush()
}

// handleImport runs one CSV import. The body is the raw CSV (any tolerated
// encoding); multipart uploads supply it as the "file" form field. The fiscal
// year, when required, comes from the fiscal_year query parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind := schema.ImportKind(chi.URLParam(r, "kind"))

	body, err := s.readImportBody(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx, cancel := timeoutContext(r, s.cfg.Import.Timeout)
	defer cancel()

	result, err := s.importer.Import(ctx, core.Request{
		Kind:       kind,
		CSVText:    string(body),
		FiscalYear: r.URL.Query().Get("fiscal_year"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readImportBody returns the CSV payload, from the "file" form field for
// multipart requests or the raw body otherwise. Size is capped either way.
func (s *Server) readImportBody(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.cfg.Import.MaxFileSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("reading uploaded file: %w", err)
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, s.cfg.Import.MaxFileSize))
	}

	return io.ReadAll(r.Body)
}

func (s *Server) handleImportRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ImportRuns(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	type runInfo struct {
		ID        string            `json:"id"`
		Kind      schema.ImportKind `json:"kind"`
		StartedAt time.Time         `json:"startedAt"`
		Processed int               `json:"processed"`
		Imported  int               `json:"imported"`
		Failed    int               `json:"failed"`
	}
	out := make([]runInfo, 0, len(runs))
	for _, run := range runs {
		out = append(out, runInfo{
			ID:        run.ID,
			Kind:      run.Kind,
			StartedAt: run.StartedAt,
			Processed: run.Processed,
			Imported:  run.Imported,
			Failed:    run.Failed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// commitmentRequest declares one commitment without going through a CSV file.
// The resource is addressed by id or, failing that, by name.
type commitmentRequest struct {
	ResourceID   string `json:"resourceId"`
	ResourceName string `json:"resourceName"`
	PeriodStart  string `json:"periodStart"` // DD-MM-YYYY
	PeriodEnd    string `json:"periodEnd"`   // DD-MM-YYYY
	Frequency    string `json:"frequency"`
	HoursPerUnit string `json:"hoursPerUnit"`
}

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	resourceID := req.ResourceID
	if resourceID == "" && req.ResourceName != "" {
		res, err := s.store.FindResourceByName(r.Context(), req.ResourceName)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resourceID = res.ID
	}

	start, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		badRequest(w, "periodStart must be DD-MM-YYYY")
		return
	}
	end, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		badRequest(w, "periodEnd must be DD-MM-YYYY")
		return
	}
	hours, err := decimal.NewFromString(req.HoursPerUnit)
	if err != nil {
		badRequest(w, "hoursPerUnit must be a number")
		return
	}

	snap, err := s.engine.CommitmentCreated(r.Context(), ledger.CommitmentPeriod{
		ResourceID:   resourceID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Frequency:    schema.Frequency(req.Frequency),
		HoursPerUnit: hours,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshotResponse(snap))
}

// allocationRequest records hours already assigned to a resource.
type allocationRequest struct {
	Hours  string `json:"hours"`
	Source string `json:"source"`
}

func (s *Server) handleAddAllocation(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")

	var req allocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	hours, err := decimal.NewFromString(req.Hours)
	if err != nil {
		badRequest(w, "hours must be a number")
		return
	}

	if err := s.store.AddAllocation(r.Context(), ledger.Allocation{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		Hours:      hours,
		Source:     req.Source,
	}); err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.engine.AllocationChanged(r.Context(), resourceID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshotResponse(snap))
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")

	res, err := s.store.GetResource(r.Context(), resourceID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if res.Snapshot == nil {
		// No commitments yet: derive the all-zero snapshot on demand.
		snap, err := s.engine.AllocationChanged(r.Context(), resourceID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse(snap))
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(res.Snapshot))
}

// capacityResponse is the JSON shape of a capacity snapshot. Decimals are
// rendered as strings so clients never lose precision to float parsing.
type capacityResponse struct {
	ResourceID          string    `json:"resourceId"`
	TotalAvailableHours string    `json:"totalAvailableHours"`
	AllocatedHours      string    `json:"allocatedHours"`
	RemainingCapacity   string    `json:"remainingCapacity"`
	OverAllocated       bool      `json:"overAllocated"`
	ComputedAt          time.Time `json:"computedAt"`
}

func snapshotResponse(snap *ledger.CapacitySnapshot) capacityResponse {
	return capacityResponse{
		ResourceID:          snap.ResourceID,
		TotalAvailableHours: snap.TotalAvailableHours.String(),
		AllocatedHours:      snap.AllocatedHours.String(),
		RemainingCapacity:   snap.RemainingCapacity.String(),
		OverAllocated:       snap.RemainingCapacity.IsNegative(),
		ComputedAt:          snap.ComputedAt,
	}
}

// badRequest reports a malformed request body without going through the
// error mapper: these are shape problems, not domain errors.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   msg,
		Message: msg,
		Code:    "REQ001",
	})
}

// timeoutContext bounds a request-scoped operation. A zero duration keeps
// the request's own deadline.
func timeoutContext(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}
