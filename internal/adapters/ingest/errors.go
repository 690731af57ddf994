package ingest

import (
	"errors"
	"fmt"
)

// Sentinel kinds for ingest errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrInvalidValue  = errors.New("invalid value")
	ErrUnsupported   = errors.New("unsupported file type")
	ErrSheetNotFound = errors.New("sheet not found")
)

// ValueError locates a cell that could not be parsed. Row is 1-based and
// counts the header.
type ValueError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("row %d column %s: %q: %v", e.Row, e.Column, e.Value, e.Err)
}

// Unwrap lets callers match ErrInvalidValue and the underlying parse error.
func (e *ValueError) Unwrap() []error { return []error{ErrInvalidValue, e.Err} }
