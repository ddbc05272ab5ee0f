package core

// importer.go is the orchestrator: one generic algorithm over template
// descriptors. Per-kind behavior lives in the descriptor table and in the
// record builders; nothing here branches on import kind except the final
// hand-off to the ledger.
//
// Failure policy: a bad row is recorded and skipped, never fatal. The only
// whole-file aborts are unparseable CSV syntax and a header row that does
// not match the template. Cancellation mid-file is a hard stop: rows already
// upserted stay committed.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/planops/capacity/internal/capacity"
	"github.com/planops/capacity/internal/ledger"
	"github.com/planops/capacity/internal/schema"
	"github.com/planops/capacity/internal/tabular"
)

// Importer drives one CSV file end-to-end for a given import kind.
type Importer struct {
	ledger  ledger.Ledger
	engine  *capacity.Engine
	limiter *ImportLimiter
}

// NewImporter wires the orchestrator to its collaborators. A nil limiter
// gets the default single-slot limiter.
func NewImporter(l ledger.Ledger, e *capacity.Engine, limiter *ImportLimiter) *Importer {
	if limiter == nil {
		limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime)
	}
	return &Importer{ledger: l, engine: e, limiter: limiter}
}

// Limiter exposes the import limiter for shutdown draining.
func (im *Importer) Limiter() *ImportLimiter { return im.limiter }

// Import runs one file. Row-level failures are reported inside the result;
// the error return is reserved for file-level failures (unknown kind,
// missing fiscal year, malformed CSV, header mismatch, cancellation).
func (im *Importer) Import(ctx context.Context, req Request) (*ImportResult, error) {
	td, ok := schema.Get(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
	}
	if td.RequiresFiscalYear && strings.TrimSpace(req.FiscalYear) == "" {
		return nil, ErrFiscalYearRequired
	}

	if err := im.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer im.limiter.Release()

	reader, err := tabular.NewReader([]byte(req.CSVText))
	if err != nil {
		return nil, err
	}

	// Title rows are skipped unconditionally and never validated.
	for i := 0; i < td.TitleRows; i++ {
		if _, err := reader.Next(); errors.Is(err, io.EOF) {
			return nil, &HeaderMismatchError{Kind: td.Kind, Expected: td.Header}
		} else if err != nil {
			return nil, err
		}
	}

	headerRow, err := reader.Next()
	if errors.Is(err, io.EOF) {
		return nil, &HeaderMismatchError{Kind: td.Kind, Expected: td.Header}
	}
	if err != nil {
		return nil, err
	}
	if !headerMatches(headerRow, td.Header) {
		return nil, &HeaderMismatchError{Kind: td.Kind, Expected: td.Header, Got: trimCells(headerRow)}
	}

	result := &ImportResult{RunID: uuid.New().String(), Kind: td.Kind}
	started := time.Now().UTC()
	logger := slog.Default().With("run_id", result.RunID, "kind", td.Kind)
	logger.Info("import started")

	// Within-file duplicate tracking by natural key (first row wins).
	seen := make(map[string]int)

	rowNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("import cancelled at row %d: %w", rowNum, err)
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		// Interior blank rows carry no data and are not counted.
		if blankRow(row) {
			continue
		}

		rowNum++
		result.Processed++

		rec, fieldErrs := ValidateRow(td, row, rowNum)
		if len(fieldErrs) > 0 {
			result.addFieldErrors(rowNum, fieldErrs)
			continue
		}

		if !td.RowOrderKey {
			key := naturalKeyOf(td, rec)
			if firstRow, dup := seen[key]; dup {
				result.addError(RowError{
					Row:     rowNum,
					Field:   td.NaturalKey[0],
					Message: fmt.Sprintf("duplicate of row %d (same %s)", firstRow, strings.Join(td.NaturalKey, ", ")),
				})
				continue
			}
			seen[key] = rowNum
		}

		if td.Kind == schema.KindLabourRates {
			if w := upliftWarning(rec); w != nil {
				result.Warnings = append(result.Warnings, *w)
			}
		}

		if err := im.apply(ctx, td, rec, req); err != nil {
			result.addError(RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		result.Imported++
	}

	if err := im.ledger.RecordImportRun(ctx, ledger.ImportRun{
		ID:        result.RunID,
		Kind:      td.Kind,
		StartedAt: started,
		Processed: result.Processed,
		Imported:  result.Imported,
		Failed:    result.Failed,
	}); err != nil {
		logger.Warn("failed to record import run", "error", err)
	}

	logger.Info("import complete",
		"processed", result.Processed,
		"imported", result.Imported,
		"failed", result.Failed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

// apply hands one validated record to the ledger (and, for commitments, the
// capacity engine). Errors here are row-level: reported and skipped.
func (im *Importer) apply(ctx context.Context, td *schema.TemplateDescriptor, rec *Record, req Request) error {
	switch td.Kind {
	case schema.KindLabourRates:
		_, err := im.ledger.UpsertLabourRate(ctx, buildLabourRate(rec, req.FiscalYear))
		return err

	case schema.KindResources:
		_, err := im.ledger.UpsertResource(ctx, buildResource(rec))
		return err

	case schema.KindCommitment:
		name := rec.Text(schema.ColResourceName)
		resource, err := im.ledger.FindResourceByName(ctx, name)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("no resource named %q; import resources first", name)
		}
		if err != nil {
			return err
		}
		_, err = im.engine.CommitmentCreated(ctx, buildCommitment(rec, resource.ID))
		return err

	case schema.KindEpicFeatureConfig:
		_, err := im.ledger.UpsertConfigEntry(ctx, buildConfigEntry(rec))
		return err

	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, td.Kind)
	}
}

// naturalKeyOf joins a record's natural-key cells. For descriptors with a
// fallback key (resources), the first present column wins, mirroring the
// ledger's lookup order.
func naturalKeyOf(td *schema.TemplateDescriptor, rec *Record) string {
	if td.Kind == schema.KindResources {
		if emp := rec.Text(schema.ColEmployeeID); emp != "" {
			return "emp/" + emp
		}
		return "name/" + rec.Text(schema.ColResourceName)
	}

	parts := make([]string, 0, len(td.NaturalKey))
	for _, col := range td.NaturalKey {
		v := rec.Values[col]
		switch {
		case !v.Present:
			parts = append(parts, "")
		case !v.Date.IsZero():
			parts = append(parts, v.Date.Format("2006-01-02"))
		default:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "/")
}

func headerMatches(row, expected []string) bool {
	trimmed := trimCells(row)
	if len(trimmed) != len(expected) {
		return false
	}
	for i, cell := range trimmed {
		if cell != expected[i] {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
