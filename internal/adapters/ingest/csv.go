package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/okian/rallyscore/internal/domain/model"
)

// CSVReader reads observations from comma or semicolon separated text.
type CSVReader struct {
	r    io.Reader
	opts options
}

// NewCSVReader wraps r.
func NewCSVReader(r io.Reader, opts ...Option) *CSVReader {
	return &CSVReader{r: r, opts: newOptions(opts)}
}

// Read parses the whole input.
func (c *CSVReader) Read(ctx context.Context) ([]model.RallyObservation, error) {
	br := bufio.NewReader(c.r)
	comma := c.opts.comma
	if comma == 0 {
		comma = sniffComma(br)
	}
	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records(ctx, rows)
}

// sniffComma picks ';' when the header has more semicolons than commas, as
// spreadsheets in pt-BR locales export.
func sniffComma(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

type csvFile struct {
	*CSVReader
	f *os.File
}

func (c *csvFile) Close() error { return c.f.Close() }

// CSVWriter writes scored rallies with canonical headers.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter wraps w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

var outputExtra = []string{"score", "status", "rule", "situation", "error"}

// Write writes a header and one record per point.
func (c *CSVWriter) Write(points []model.EnrichedPoint) error {
	header := append(append([]string(nil), columnNames[:]...), outputExtra...)
	if err := c.w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range points {
		if err := c.w.Write(record(&points[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func record(p *model.EnrichedPoint) []string {
	rec := make([]string, 0, int(numColumns)+len(outputExtra))
	rec = append(rec,
		strconv.Itoa(p.MatchID), strconv.Itoa(p.SetNum), strconv.Itoa(p.GameNum), strconv.Itoa(p.PointIndex),
		p.Server.String(),
		flag(p.Ace), flag(p.FirstServeIn), flag(p.ServiceFault),
		flag(p.ReturnIn), flag(p.BreakPoint), flag(p.ApproachedNet),
		p.PointOutcomeType, p.WinningShot, p.ShotDirection,
		optInt(p.RallyLength), p.ServeDirection,
		p.PointWinner.String(),
	)
	return append(rec, p.ScoreString, p.Status, p.Rule, p.Situation, p.Error)
}

func flag(t model.Tristate) string {
	switch t {
	case model.True:
		return "1"
	case model.False:
		return "0"
	}
	return ""
}

func optInt(o model.OptionalInt) string {
	if !o.Valid {
		return ""
	}
	return strconv.Itoa(o.Value)
}
