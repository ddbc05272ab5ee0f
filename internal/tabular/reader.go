// Package tabular turns raw CSV bytes into an ordered sequence of rows.
//
// The reader is deliberately dumb about content: cells come back as raw
// strings, blank cells are preserved, and no header interpretation happens
// here. Template-aware validation lives in internal/core; this package only
// guarantees well-formed row structure and encoding tolerance.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MalformedRowError reports CSV syntax the parser could not recover from,
// such as a quoted field that is never closed before end of input. It is a
// file-level error: the import aborts with zero rows processed.
type MalformedRowError struct {
	Line int
	Err  error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed CSV at line %d: %v", e.Line, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// Reader yields rows from decoded CSV bytes one at a time.
//
// The sequence is lazy (rows are parsed on demand), finite, and restartable
// via Reset. Handles quoted delimiters, escaped quotes, and both CRLF and LF
// line endings. Fully blank trailing rows are dropped; blank rows between
// data rows are passed through untouched.
type Reader struct {
	data []byte
	cr   *csv.Reader

	// Blank rows are held back until a non-blank row proves they are not
	// trailing. Discarded at EOF.
	heldBlanks [][]string
	queue      [][]string
}

// NewReader decodes raw bytes (BOM and legacy encodings tolerated) and
// returns a Reader positioned at the first row.
func NewReader(raw []byte) (*Reader, error) {
	decoded, _, err := DetectAndDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding csv input: %w", err)
	}

	r := &Reader{data: decoded}
	r.Reset()
	return r, nil
}

// Reset rewinds the reader to the first row.
func (r *Reader) Reset() {
	cr := csv.NewReader(bytes.NewReader(r.data))
	// Row shape is validated per template later; accept ragged rows here.
	cr.FieldsPerRecord = -1
	r.cr = cr
	r.heldBlanks = nil
	r.queue = nil
}

// Next returns the next row, or io.EOF after the last one.
// CSV syntax errors are reported as *MalformedRowError.
func (r *Reader) Next() ([]string, error) {
	for {
		if len(r.queue) > 0 {
			row := r.queue[0]
			r.queue = r.queue[1:]
			return row, nil
		}

		row, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.heldBlanks = nil
			return nil, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &MalformedRowError{Line: pe.Line, Err: pe.Err}
			}
			return nil, err
		}

		if isBlankRow(row) {
			r.heldBlanks = append(r.heldBlanks, row)
			continue
		}

		r.queue = append(r.queue, r.heldBlanks...)
		r.heldBlanks = nil
		r.queue = append(r.queue, row)
	}
}

// ReadAll drains the reader and returns every remaining row.
func (r *Reader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// isBlankRow reports whether every cell is empty or whitespace.
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
