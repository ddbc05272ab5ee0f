// Package schema defines the template descriptors for every supported import
// kind: which title rows to skip, the exact header shape, per-column
// validation rules, and the natural key used for upsert.
//
// Templates are a closed set. Adding an import kind means adding a descriptor
// here; the orchestrator in internal/core is generic over descriptors and
// needs no per-kind changes.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ImportKind identifies a supported CSV template.
type ImportKind string

const (
	KindLabourRates       ImportKind = "labour-rates"
	KindResources         ImportKind = "resources"
	KindCommitment        ImportKind = "commitment"
	KindEpicFeatureConfig ImportKind = "epic-feature-config"
)

// CellType is the expected data type for a CSV column.
type CellType int

const (
	CellText CellType = iota
	CellDecimal
	CellEnum
	CellDate
	CellBandActivity
)

// Value is a validated, typed cell value. Present is false when an optional
// cell was left blank; exactly one of the typed fields is meaningful,
// determined by the owning ColumnSpec's Type.
type Value struct {
	Present  bool
	Text     string
	Number   decimal.Decimal
	Date     time.Time
	Activity *BandActivity
}

// ColumnSpec declares the validation rules for a single CSV column.
type ColumnSpec struct {
	Name     string   // Record field name (may differ from the header cell)
	Type     CellType // Expected data type
	Required bool     // Empty cell rejects the row when true

	EnumValues []string // Accepted values for CellEnum, matched case-sensitively

	// Decimal constraints.
	NonNegative bool
	Min, Max    *decimal.Decimal
}

// dateLayout is the only accepted date shape: DD-MM-YYYY.
const dateLayout = "02-01-2006"

// Validate checks one raw cell against the spec and returns its typed value.
//
// An empty cell yields the absent sentinel with no error; required-ness is
// the row validator's concern, since it owns the error bookkeeping.
func (s ColumnSpec) Validate(raw string) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Value{}, nil
	}

	switch s.Type {
	case CellText:
		return Value{Present: true, Text: trimmed}, nil

	case CellDecimal:
		d, err := ParseDecimalCell(trimmed)
		if err != nil {
			return Value{}, err
		}
		if s.NonNegative && d.IsNegative() {
			return Value{}, fmt.Errorf("must not be negative, got %q", raw)
		}
		if s.Min != nil && d.LessThan(*s.Min) {
			return Value{}, fmt.Errorf("must be at least %s, got %q", s.Min, raw)
		}
		if s.Max != nil && d.GreaterThan(*s.Max) {
			return Value{}, fmt.Errorf("must be at most %s, got %q", s.Max, raw)
		}
		return Value{Present: true, Number: d}, nil

	case CellEnum:
		for _, accepted := range s.EnumValues {
			if trimmed == accepted {
				return Value{Present: true, Text: trimmed}, nil
			}
		}
		return Value{}, fmt.Errorf("value must be one of: %s", strings.Join(s.EnumValues, ", "))

	case CellDate:
		t, err := time.Parse(dateLayout, trimmed)
		if err != nil {
			return Value{}, fmt.Errorf("invalid date %q (use DD-MM-YYYY)", raw)
		}
		return Value{Present: true, Date: t}, nil

	case CellBandActivity:
		ba, err := ParseBandActivity(trimmed)
		if err != nil {
			return Value{}, err
		}
		if ba == nil {
			// "Nil" sentinel: explicitly not applicable.
			return Value{}, nil
		}
		return Value{Present: true, Activity: ba}, nil

	default:
		return Value{}, fmt.Errorf("unknown cell type %d", s.Type)
	}
}

// ParseDecimalCell parses a numeric or currency cell. A single leading "$"
// and thousands separators are stripped; more than two decimal places or any
// non-numeric residue is rejected.
func ParseDecimalCell(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", raw)
	}

	if _, frac, found := strings.Cut(s, "."); found && len(frac) > 2 {
		return decimal.Decimal{}, fmt.Errorf("more than 2 decimal places in %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", raw)
	}
	return d, nil
}

// TemplateDescriptor is the static metadata for one import kind.
type TemplateDescriptor struct {
	Kind  ImportKind
	Label string // Display name: "Labour Rates"

	// TitleRows is the count of leading non-data rows skipped unconditionally
	// and never validated.
	TitleRows int

	// Header is the exact expected header cell sequence. The first non-title
	// row, trimmed, must equal it case-sensitively; a mismatch is a
	// file-level error with zero rows processed.
	Header []string

	// Columns are the per-column validation rules, in header order.
	Columns []ColumnSpec

	// NaturalKey names the columns forming the upsert identity. For
	// descriptors with fallback keys (resources), entries are in preference
	// order: the first column with a present value wins.
	NaturalKey []string

	// RowOrderKey adds the data-row ordinal to the natural key, for
	// templates where position is meaningful (epic-feature-config).
	RowOrderKey bool

	// RequiresFiscalYear marks kinds whose import request must carry a
	// fiscal year (labour-rates).
	RequiresFiscalYear bool
}

// ColumnCount returns the declared number of columns.
func (t *TemplateDescriptor) ColumnCount() int {
	return len(t.Columns)
}

// Column returns the spec for the named column, or false if not declared.
func (t *TemplateDescriptor) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}
