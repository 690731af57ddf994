// Package ingest reads rally observations from scouting spreadsheets and
// writes scored rallies back out.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/rallyscore/internal/domain/model"
)

// ctxCheckEvery is how many rows are read between context checks.
const ctxCheckEvery = 256

// Reader yields observations in document order.
type Reader interface {
	Read(ctx context.Context) ([]model.RallyObservation, error)
}

// ReadCloser is a Reader backed by an open file.
type ReadCloser interface {
	Reader
	Close() error
}

// Open picks a reader by file extension: .csv, .xlsx or .xlsm.
func Open(path string, opts ...Option) (ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return &csvFile{CSVReader: NewCSVReader(f, opts...), f: f}, nil
	case ".xlsx", ".xlsm":
		x, err := OpenXLSX(path, opts...)
		if err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

// records turns header plus rows into observations. Blank rows are skipped.
func records(ctx context.Context, rows [][]string) ([]model.RallyObservation, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
	}
	l, err := newLayout(rows[0])
	if err != nil {
		return nil, err
	}
	out := make([]model.RallyObservation, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if blank(rec) {
			continue
		}
		obs, err := l.parse(rec, i+2)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}
