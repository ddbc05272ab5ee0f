package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/planops/capacity/internal/schema"
)

// ErrFiscalYearRequired is returned when a labour-rates import arrives
// without a fiscal year.
var ErrFiscalYearRequired = errors.New("fiscal year is required for labour-rates imports")

// ErrUnknownKind is returned for an import kind with no registered template.
var ErrUnknownKind = errors.New("unknown import kind")

// HeaderMismatchError is the file-level rejection for a file whose header
// row does not match the template. The whole import aborts with zero rows
// processed; this is the "import shows 0 records" failure users see when
// they upload the wrong template.
type HeaderMismatchError struct {
	Kind     schema.ImportKind
	Expected []string
	Got      []string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("import shows 0 records: header row %q does not match the %s template %q",
		strings.Join(e.Got, ","), e.Kind, strings.Join(e.Expected, ","))
}

// FieldError is one invalid cell within a row. All field errors for a row
// are collected before the row is rejected, so one pass over the file gives
// a complete fix list.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
