package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/rallyscore/internal/domain/model"
)

// Sheet names used by the scouting workbook.
const (
	DefaultSheet      = "Digitação"
	DefaultMatchSheet = "Partidas"
)

// XLSXReader reads observations from a workbook.
type XLSXReader struct {
	f    *excelize.File
	opts options
}

// OpenXLSX opens a workbook on disk.
func OpenXLSX(path string, opts ...Option) (*XLSXReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &XLSXReader{f: f, opts: newOptions(opts)}, nil
}

// NewXLSXReader reads a workbook from r.
func NewXLSXReader(r io.Reader, opts ...Option) (*XLSXReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &XLSXReader{f: f, opts: newOptions(opts)}, nil
}

// Close releases the workbook.
func (x *XLSXReader) Close() error { return x.f.Close() }

// Read parses the rally sheet, or the first sheet when it does not exist.
func (x *XLSXReader) Read(ctx context.Context) ([]model.RallyObservation, error) {
	sheet := x.rallySheet()
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}
	rows, err := x.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return records(ctx, rows)
}

func (x *XLSXReader) rallySheet() string {
	sheets := x.f.GetSheetList()
	for _, s := range sheets {
		if foldHeader(s) == foldHeader(x.opts.sheet) {
			return s
		}
	}
	if len(sheets) == 0 {
		return ""
	}
	return sheets[0]
}

// matchAliases maps folded match sheet headers to setters.
var matchAliases = map[string]func(*model.Match, string) error{
	"data":               func(m *model.Match, v string) error { m.Date = v; return nil },
	"date":               func(m *model.Match, v string) error { m.Date = v; return nil },
	"adversario":         func(m *model.Match, v string) error { m.Opponent = v; return nil },
	"opponent":           func(m *model.Match, v string) error { m.Opponent = v; return nil },
	"ranking_adversario": intSetter(func(m *model.Match) *int { return &m.OpponentRanking }),
	"opponent_ranking":   intSetter(func(m *model.Match) *int { return &m.OpponentRanking }),
	"resultado":          func(m *model.Match, v string) error { m.Result = v; return nil },
	"result":             func(m *model.Match, v string) error { m.Result = v; return nil },
	"duracao_minutos":    intSetter(func(m *model.Match) *int { return &m.DurationMinutes }),
	"duration_minutes":   intSetter(func(m *model.Match) *int { return &m.DurationMinutes }),
	"superficie":         func(m *model.Match, v string) error { m.Surface = v; return nil },
	"surface":            func(m *model.Match, v string) error { m.Surface = v; return nil },
	"clima":              func(m *model.Match, v string) error { m.Weather = v; return nil },
	"weather":            func(m *model.Match, v string) error { m.Weather = v; return nil },
	"cansaco_pre_jogo":   intSetter(func(m *model.Match) *int { return &m.PreMatchFatigue }),
	"pre_match_fatigue":  intSetter(func(m *model.Match) *int { return &m.PreMatchFatigue }),
	"qualidade_sono":     intSetter(func(m *model.Match) *int { return &m.SleepQuality }),
	"sleep_quality":      intSetter(func(m *model.Match) *int { return &m.SleepQuality }),
	"dias_descanso":      intSetter(func(m *model.Match) *int { return &m.RestDays }),
	"rest_days":          intSetter(func(m *model.Match) *int { return &m.RestDays }),
	"observacoes":        func(m *model.Match, v string) error { m.Notes = v; return nil },
	"notes":              func(m *model.Match, v string) error { m.Notes = v; return nil },
}

func intSetter(field func(*model.Match) *int) func(*model.Match, string) error {
	return func(m *model.Match, v string) error {
		n, ok, err := parseInt(v)
		if err != nil {
			return err
		}
		if ok {
			*field(m) = n
		}
		return nil
	}
}

// ReadMatches parses the match sheet. Without a match id column a match's
// id is its 1-based position in the sheet, counting non-blank rows.
func (x *XLSXReader) ReadMatches(ctx context.Context) ([]model.Match, error) {
	sheet := ""
	for _, s := range x.f.GetSheetList() {
		if foldHeader(s) == foldHeader(x.opts.matchSheet) {
			sheet = s
		}
	}
	if sheet == "" {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, x.opts.matchSheet)
	}
	rows, err := x.f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = foldHeader(h)
	}

	var out []model.Match
	for i, rec := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		m := model.Match{ID: len(out) + 1}
		for pos, h := range header {
			if pos >= len(rec) {
				break
			}
			v := strings.TrimSpace(rec[pos])
			if h == "partida_id" || h == "match_id" {
				id, ok, err := parseInt(v)
				if err != nil {
					return nil, &ValueError{Row: i + 2, Column: h, Value: v, Err: err}
				}
				if ok {
					m.ID = id
				}
				continue
			}
			set, ok := matchAliases[h]
			if !ok {
				continue
			}
			if err := set(&m, text(v)); err != nil {
				return nil, &ValueError{Row: i + 2, Column: h, Value: v, Err: err}
			}
		}
		out = append(out, m)
	}
	return out, nil
}
