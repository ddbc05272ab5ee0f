// Package core drives CSV imports end-to-end: it reads rows through the
// tabular reader, validates them against a template descriptor, and hands
// valid records to the ledger. It has no UI or transport dependencies.
package core

import (
	"github.com/planops/capacity/internal/schema"
)

// MaxReportedErrors caps the error list carried on an ImportResult. Failed
// still counts every rejected row; only the detail list is bounded.
const MaxReportedErrors = 10

// Request asks the orchestrator to run one import.
type Request struct {
	Kind    schema.ImportKind
	CSVText string

	// FiscalYear is required for labour-rates imports and stored alongside
	// each rate record. It is not validated beyond being non-empty.
	FiscalYear string
}

// RowError locates one rejected cell: row numbers are 1-based counting from
// the first data row, Field names the offending column, and Message says
// what to fix.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportResult summarizes one import run.
//
// Invariant: Processed = Imported + Failed. Imported counts records that
// reached the ledger successfully, not rows that merely parsed.
type ImportResult struct {
	RunID     string            `json:"runId"`
	Kind      schema.ImportKind `json:"kind"`
	Processed int               `json:"processed"`
	Imported  int               `json:"imported"`
	Failed    int               `json:"failed"`

	// Errors holds the first MaxReportedErrors row errors, in row order.
	Errors []RowError `json:"errors"`

	// Warnings are advisory findings on rows that still imported, such as a
	// daily rate out of step with the hourly rate.
	Warnings []RowError `json:"warnings,omitempty"`
}

// addError appends to the bounded error list and bumps the failure count.
func (r *ImportResult) addError(e RowError) {
	r.Failed++
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, e)
	}
}

// addFieldErrors records every field error for one rejected row. The row
// counts once toward Failed no matter how many cells were bad.
func (r *ImportResult) addFieldErrors(row int, errs []FieldError) {
	r.Failed++
	for _, fe := range errs {
		if len(r.Errors) >= MaxReportedErrors {
			return
		}
		r.Errors = append(r.Errors, RowError{Row: row, Field: fe.Field, Message: fe.Message})
	}
}
