package core

// validate.go applies a template's column specs to one data row.
//
// Rows are normalized to the declared column count before validation: short
// trailing rows are padded with empty cells (spreadsheets drop trailing
// blanks on export) and overlong rows are truncated. Missing trailing cells
// are therefore never an error in themselves; a required column left empty
// still is.

import (
	"strings"

	"github.com/planops/capacity/internal/schema"
)

// ValidateRow checks one data row against the descriptor. On success the
// returned record maps column names to typed values; on failure it returns
// every field error found, not just the first.
func ValidateRow(td *schema.TemplateDescriptor, row []string, rowNum int) (*Record, []FieldError) {
	cells := normalizeRow(row, td.ColumnCount())

	var errs []FieldError
	values := make(map[string]schema.Value, td.ColumnCount())

	for i, spec := range td.Columns {
		raw := strings.TrimSpace(cells[i])

		if raw == "" {
			if spec.Required {
				errs = append(errs, FieldError{Field: spec.Name, Message: "required field is empty"})
				continue
			}
			values[spec.Name] = schema.Value{}
			continue
		}

		v, err := spec.Validate(raw)
		if err != nil {
			errs = append(errs, FieldError{Field: spec.Name, Message: err.Error()})
			continue
		}
		values[spec.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Record{Row: rowNum, Values: values}, nil
}

// normalizeRow pads or truncates a raw row to the declared width.
func normalizeRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
