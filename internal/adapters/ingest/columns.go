package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/rallyscore/internal/domain/model"
)

type column int

const (
	colMatchID column = iota
	colSetNum
	colGameNum
	colPointIndex
	colServer
	colAce
	colFirstServeIn
	colServiceFault
	colReturnIn
	colBreakPoint
	colApproachedNet
	colPointOutcomeType
	colWinningShot
	colShotDirection
	colRallyLength
	colServeDirection
	colPointWinner
	numColumns
)

// columnNames are the canonical headers, also used by CSVWriter.
var columnNames = [numColumns]string{
	"match_id", "set_num", "game_num", "point_index", "server",
	"ace", "first_serve_in", "service_fault", "return_in", "break_point", "approached_net",
	"point_outcome_type", "winning_shot", "shot_direction", "rally_length", "serve_direction",
	"point_winner",
}

var required = []column{colMatchID, colSetNum, colGameNum, colPointIndex, colServer}

// aliases maps folded header spellings to columns. Scouting sheets use the
// Portuguese names.
var aliases = map[string]column{
	"partida_id": colMatchID, "partida": colMatchID,
	"set":  colSetNum,
	"game": colGameNum, "jogo": colGameNum,
	"ponto": colPointIndex, "ponto_num": colPointIndex, "point": colPointIndex,
	"servidor": colServer, "sacador": colServer,
	"primeiro_servico": colFirstServeIn,
	"falha_servico":    colServiceFault,
	"devolucao_dentro": colReturnIn,
	"subiu_rede":       colApproachedNet,
	"tipo_ponto":       colPointOutcomeType,
	"golpe_vencedor":   colWinningShot,
	"direcao_golpe":    colShotDirection,
	"num_trocas":       colRallyLength,
	"direcao_servico":  colServeDirection,
	"ganhador_ponto":   colPointWinner, "winner": colPointWinner,
}

func init() { //nolint:gochecknoinits // canonical names are aliases of themselves
	for c, name := range columnNames {
		aliases[name] = column(c)
	}
}

// foldHeader lower-cases a header, strips accents and joins words with '_'.
func foldHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	folded = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(folded, "\ufeff")))
	return strings.Join(strings.Fields(strings.ReplaceAll(folded, "-", " ")), "_")
}

// layout maps each known column to its position in a header row, -1 when absent.
type layout [numColumns]int

func newLayout(header []string) (layout, error) {
	var l layout
	for i := range l {
		l[i] = -1
	}
	for pos, h := range header {
		if c, ok := aliases[foldHeader(h)]; ok && l[c] < 0 {
			l[c] = pos
		}
	}
	var missing []string
	for _, c := range required {
		if l[c] < 0 {
			missing = append(missing, columnNames[c])
		}
	}
	if len(missing) > 0 {
		return l, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return l, nil
}

// blank reports whether every cell of a record is empty.
func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parse builds an observation from one record. row is used for error messages.
func (l *layout) parse(record []string, row int) (model.RallyObservation, error) {
	var (
		obs model.RallyObservation
		err error
	)
	cell := func(c column) string {
		if l[c] < 0 || l[c] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[l[c]])
	}
	fail := func(c column, cause error) error {
		return &ValueError{Row: row, Column: columnNames[c], Value: cell(c), Err: cause}
	}

	ints := []struct {
		c   column
		dst *int
	}{
		{colMatchID, &obs.MatchID}, {colSetNum, &obs.SetNum},
		{colGameNum, &obs.GameNum}, {colPointIndex, &obs.PointIndex},
	}
	for _, f := range ints {
		v, ok, perr := parseInt(cell(f.c))
		if perr != nil {
			return obs, fail(f.c, perr)
		}
		if !ok {
			return obs, fail(f.c, fmt.Errorf("required"))
		}
		*f.dst = v
	}

	if obs.Server, err = model.ParseSide(cell(colServer)); err != nil {
		return obs, fail(colServer, err)
	}
	if obs.PointWinner, err = model.ParseSide(cell(colPointWinner)); err != nil {
		return obs, fail(colPointWinner, err)
	}

	flags := []struct {
		c   column
		dst *model.Tristate
	}{
		{colAce, &obs.Ace}, {colFirstServeIn, &obs.FirstServeIn}, {colServiceFault, &obs.ServiceFault},
		{colReturnIn, &obs.ReturnIn}, {colBreakPoint, &obs.BreakPoint}, {colApproachedNet, &obs.ApproachedNet},
	}
	for _, f := range flags {
		if *f.dst, err = model.ParseTristate(cell(f.c)); err != nil {
			return obs, fail(f.c, err)
		}
	}

	v, ok, perr := parseInt(cell(colRallyLength))
	if perr != nil {
		return obs, fail(colRallyLength, perr)
	}
	if ok {
		if v < 0 {
			return obs, fail(colRallyLength, model.ErrNegativeCount)
		}
		obs.RallyLength = model.Int(v)
	}

	obs.PointOutcomeType = text(cell(colPointOutcomeType))
	obs.WinningShot = text(cell(colWinningShot))
	obs.ShotDirection = text(cell(colShotDirection))
	obs.ServeDirection = text(cell(colServeDirection))
	return obs, nil
}

// parseInt accepts integers and integral floats such as "3.0". ok is false
// for empty cells.
func parseInt(s string) (int, bool, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("not a number")
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("not an integer")
	}
	return int(f), true, nil
}

func text(s string) string {
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}
