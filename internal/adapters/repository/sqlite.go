package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/pkg/logger"
	"github.com/okian/rallyscore/pkg/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	memoryPath         = ":memory:"
	defaultBusyTimeout = 5 * time.Second
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	now         func() time.Time
	logger      logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens and migrates the database at path. An empty path or ":memory:"
// opens a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout: defaultBusyTimeout,
		now:         time.Now,
		logger:      logger.Get().Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	path = strings.TrimSpace(path)
	memory := path == "" || path == memoryPath
	var dsn string
	if memory {
		dsn = memoryPath
	} else {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			filepath.Clean(path), s.busyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s.db = db
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "store opened", logger.String("path", dsn), logger.Bool("memory", memory))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%w: source: %w", ErrMigrate, err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: driver: %w", ErrMigrate, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	// m.Close would close s.db through the driver.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: up: %w", ErrMigrate, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
}

// SaveMatch inserts or replaces match metadata.
func (s *SQLiteStore) SaveMatch(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: value keeps callers' copy untouched
	defer observe("save_match", time.Now())
	if m.ID <= 0 {
		return fmt.Errorf("%w: match id must be positive, got %d", ErrInvalidMatch, m.ID)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO matches (match_id, match_date, opponent, opponent_ranking, result, duration_minutes,
                     surface, weather, pre_match_fatigue, sleep_quality, rest_days, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
    match_date = excluded.match_date,
    opponent = excluded.opponent,
    opponent_ranking = excluded.opponent_ranking,
    result = excluded.result,
    duration_minutes = excluded.duration_minutes,
    surface = excluded.surface,
    weather = excluded.weather,
    pre_match_fatigue = excluded.pre_match_fatigue,
    sleep_quality = excluded.sleep_quality,
    rest_days = excluded.rest_days,
    notes = excluded.notes`,
		m.ID, m.Date, m.Opponent, m.OpponentRanking, m.Result, m.DurationMinutes,
		m.Surface, m.Weather, m.PreMatchFatigue, m.SleepQuality, m.RestDays, m.Notes,
	)
	if err != nil {
		metrics.RecordErrorByComponent("store", "save_match")
		return fmt.Errorf("save match %d: %w", m.ID, err)
	}
	return nil
}

const matchColumns = `match_id, match_date, opponent, opponent_ranking, result, duration_minutes,
       surface, weather, pre_match_fatigue, sleep_quality, rest_days, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (model.Match, error) {
	var m model.Match
	err := row.Scan(&m.ID, &m.Date, &m.Opponent, &m.OpponentRanking, &m.Result, &m.DurationMinutes,
		&m.Surface, &m.Weather, &m.PreMatchFatigue, &m.SleepQuality, &m.RestDays, &m.Notes)
	return m, err
}

// GetMatch loads match metadata by id.
func (s *SQLiteStore) GetMatch(ctx context.Context, id int) (model.Match, error) {
	defer observe("get_match", time.Now())
	m, err := scanMatch(s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Match{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Match{}, fmt.Errorf("get match %d: %w", id, err)
	}
	return m, nil
}

// ListMatches returns all matches ordered by date then id.
func (s *SQLiteStore) ListMatches(ctx context.Context) ([]model.Match, error) {
	defer observe("list_matches", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY match_date, match_id`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveRallies stores points in one transaction. A point already stored under
// the same (match, set, game, point index) is overwritten when any of its
// values changed and left alone otherwise. It returns how many points were
// inserted or updated.
func (s *SQLiteStore) SaveRallies(ctx context.Context, batchID string, points []model.EnrichedPoint) (int, error) {
	defer observe("save_rallies", time.Now())
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO rallies (match_id, set_num, game_num, point_index, server,
                     ace, first_serve_in, service_fault, return_in, break_point, approached_net,
                     point_outcome_type, winning_shot, shot_direction, serve_direction,
                     rally_length, point_winner, score, status, rule, situation, error,
                     batch_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id, set_num, game_num, point_index) DO UPDATE SET
    server = excluded.server, ace = excluded.ace, first_serve_in = excluded.first_serve_in,
    service_fault = excluded.service_fault, return_in = excluded.return_in,
    break_point = excluded.break_point, approached_net = excluded.approached_net,
    point_outcome_type = excluded.point_outcome_type, winning_shot = excluded.winning_shot,
    shot_direction = excluded.shot_direction, serve_direction = excluded.serve_direction,
    rally_length = excluded.rally_length, point_winner = excluded.point_winner,
    score = excluded.score, status = excluded.status, rule = excluded.rule,
    situation = excluded.situation, error = excluded.error, batch_id = excluded.batch_id
WHERE rallies.server IS NOT excluded.server
   OR rallies.ace IS NOT excluded.ace
   OR rallies.first_serve_in IS NOT excluded.first_serve_in
   OR rallies.service_fault IS NOT excluded.service_fault
   OR rallies.return_in IS NOT excluded.return_in
   OR rallies.break_point IS NOT excluded.break_point
   OR rallies.approached_net IS NOT excluded.approached_net
   OR rallies.point_outcome_type IS NOT excluded.point_outcome_type
   OR rallies.winning_shot IS NOT excluded.winning_shot
   OR rallies.shot_direction IS NOT excluded.shot_direction
   OR rallies.serve_direction IS NOT excluded.serve_direction
   OR rallies.rally_length IS NOT excluded.rally_length
   OR rallies.point_winner IS NOT excluded.point_winner
   OR rallies.score IS NOT excluded.score
   OR rallies.status IS NOT excluded.status
   OR rallies.rule IS NOT excluded.rule
   OR rallies.situation IS NOT excluded.situation
   OR rallies.error IS NOT excluded.error`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	created := s.now().UnixMilli()
	written := 0
	for i := range points {
		p := &points[i]
		res, err := stmt.ExecContext(ctx,
			p.MatchID, p.SetNum, p.GameNum, p.PointIndex, sideValue(p.Server),
			tristateValue(p.Ace), tristateValue(p.FirstServeIn), tristateValue(p.ServiceFault),
			tristateValue(p.ReturnIn), tristateValue(p.BreakPoint), tristateValue(p.ApproachedNet),
			p.PointOutcomeType, p.WinningShot, p.ShotDirection, p.ServeDirection,
			intValue(p.RallyLength), sideValue(p.PointWinner), p.ScoreString,
			p.Status, p.Rule, p.Situation, p.Error,
			batchID, created,
		)
		if err != nil {
			metrics.RecordErrorByComponent("store", "save_rallies")
			return 0, fmt.Errorf("insert %s point=%d: %w", p.Key(), p.PointIndex, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordErrorByComponent("store", "commit")
		return 0, fmt.Errorf("commit: %w", err)
	}
	metrics.RecordStoreRallies(written, len(points)-written)
	return written, nil
}

// ListRallies returns the stored points of a match ordered by set, game and point index.
func (s *SQLiteStore) ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error) {
	defer observe("list_rallies", time.Now())
	rows, err := s.db.QueryContext(ctx, `
SELECT match_id, set_num, game_num, point_index, server,
       ace, first_serve_in, service_fault, return_in, break_point, approached_net,
       point_outcome_type, winning_shot, shot_direction, serve_direction,
       rally_length, point_winner, score, status, rule, situation, error
FROM rallies
WHERE match_id = ?
ORDER BY set_num, game_num, point_index`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list rallies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.EnrichedPoint
	for rows.Next() {
		var (
			p                                        model.EnrichedPoint
			server, winner                           sql.NullString
			ace, fsi, fault, retIn, bp, net, rallyLn sql.NullInt64
		)
		if err := rows.Scan(
			&p.MatchID, &p.SetNum, &p.GameNum, &p.PointIndex, &server,
			&ace, &fsi, &fault, &retIn, &bp, &net,
			&p.PointOutcomeType, &p.WinningShot, &p.ShotDirection, &p.ServeDirection,
			&rallyLn, &winner, &p.ScoreString, &p.Status, &p.Rule, &p.Situation, &p.Error,
		); err != nil {
			return nil, fmt.Errorf("scan rally: %w", err)
		}
		p.Server = sideFrom(server)
		p.PointWinner = sideFrom(winner)
		p.Ace = tristateFrom(ace)
		p.FirstServeIn = tristateFrom(fsi)
		p.ServiceFault = tristateFrom(fault)
		p.ReturnIn = tristateFrom(retIn)
		p.BreakPoint = tristateFrom(bp)
		p.ApproachedNet = tristateFrom(net)
		if rallyLn.Valid {
			p.RallyLength = model.Int(int(rallyLn.Int64))
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored rallies.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rallies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rallies: %w", err)
	}
	return n, nil
}

func sideValue(s model.Side) any {
	if !s.Valid() {
		return nil
	}
	return s.String()
}

func sideFrom(v sql.NullString) model.Side {
	if !v.Valid {
		return model.SideNone
	}
	s, err := model.ParseSide(v.String)
	if err != nil {
		return model.SideNone
	}
	return s
}

func tristateValue(t model.Tristate) any {
	switch t {
	case model.True:
		return 1
	case model.False:
		return 0
	}
	return nil
}

func tristateFrom(v sql.NullInt64) model.Tristate {
	if !v.Valid {
		return model.Unknown
	}
	return model.Bool(v.Int64 != 0)
}

func intValue(o model.OptionalInt) any {
	if !o.Valid {
		return nil
	}
	return o.Value
}
