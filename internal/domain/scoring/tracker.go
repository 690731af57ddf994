package scoring

import (
	"fmt"

	"github.com/okian/rallyscore/internal/domain/model"
)

// Status tags the scoring outcome of one row.
type Status string

const (
	StatusScored     Status = "scored"
	StatusUnresolved Status = "unresolved"
	StatusBlocked    Status = "blocked"
	StatusIntegrity  Status = "integrity_error"
)

// Scored is the tracker output for one input row.
type Scored struct {
	// Observation is the input row with ScoreString assigned.
	Observation model.RallyObservation
	Before      State
	After       State
	GameWon     bool
	// Reset is set when the score was reset because the server changed
	// mid-game.
	Reset  bool
	Status Status
	Err    error
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithServerChangeReset toggles the reset to 0-0 when the recorded server
// changes inside a game. Real games never change server mid-game, so the
// reset only papers over entry mistakes; it is kept on by default.
func WithServerChangeReset(enabled bool) Option {
	return func(t *Tracker) {
		t.resetOnServerChange = enabled
	}
}

// Tracker scores grouped, ordered observations. It holds configuration
// only; all game state lives on the stack of Track.
type Tracker struct {
	resetOnServerChange bool
}

// NewTracker creates a tracker with configuration options.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{resetOnServerChange: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track returns one Scored per input row, in input order. Rows must be
// grouped by (match, set, game) and ordered by point index within a group.
// The returned error is non-nil only for invariant violations.
func (t *Tracker) Track(rows []model.RallyObservation) ([]Scored, error) {
	out := make([]Scored, len(rows))
	broken := checkIntegrity(rows)

	for start := 0; start < len(rows); {
		key := rows[start].Key()
		end := start + 1
		for end < len(rows) && rows[end].Key() == key {
			end++
		}
		if ierr, ok := broken[key]; ok {
			for i := start; i < end; i++ {
				out[i] = Scored{Observation: rows[i], Status: StatusIntegrity, Err: ierr}
				out[i].Observation.ScoreString = ""
			}
		} else if err := t.trackGame(rows[start:end], out[start:end]); err != nil {
			return nil, err
		}
		start = end
	}
	return out, nil
}

func (t *Tracker) trackGame(rows []model.RallyObservation, out []Scored) error {
	var (
		state   State
		blocked *UnresolvedError
	)
	for i := range rows {
		row := rows[i]
		sc := Scored{Observation: row}

		reset := t.resetOnServerChange && i > 0 && row.Server != rows[i-1].Server
		if reset {
			state = State{}
		}

		if blocked != nil {
			sc.Status = StatusBlocked
			sc.Observation.ScoreString = ""
			sc.Err = &UnresolvedError{Key: blocked.Key, PointIndex: blocked.PointIndex, At: row.PointIndex}
			out[i] = sc
			continue
		}

		sc.Reset = reset
		sc.Before = state
		role, ok := RoleOf(row.Server, row.PointWinner)
		if !ok {
			blocked = &UnresolvedError{Key: row.Key(), PointIndex: row.PointIndex, At: row.PointIndex}
			sc.After = state
			sc.Status = StatusUnresolved
			sc.Observation.ScoreString = state.String()
			sc.Err = blocked
			out[i] = sc
			continue
		}

		next, won, err := Transition(state, role)
		if err != nil {
			return fmt.Errorf("%s point=%d: %w", row.Key(), row.PointIndex, err)
		}
		sc.After = next
		sc.GameWon = won
		sc.Status = StatusScored
		if won {
			sc.Observation.ScoreString = GameMarker
		} else {
			sc.Observation.ScoreString = state.String()
		}
		state = next
		out[i] = sc
	}
	return nil
}

// checkIntegrity finds groups that cannot be scored: point indexes that do
// not strictly increase, or a group split into non-contiguous runs.
func checkIntegrity(rows []model.RallyObservation) map[model.GroupKey]*IntegrityError {
	broken := make(map[model.GroupKey]*IntegrityError)
	seen := make(map[model.GroupKey]int) // key -> last point index

	for i := range rows {
		key := rows[i].Key()
		idx := rows[i].PointIndex
		if _, ok := broken[key]; ok {
			continue
		}
		prev, ok := seen[key]
		switch {
		case !ok:
		case i > 0 && rows[i-1].Key() != key:
			broken[key] = &IntegrityError{Key: key, PointIndex: idx, Previous: prev, Reason: "game split across non-contiguous rows"}
			continue
		case idx == prev:
			broken[key] = &IntegrityError{Key: key, PointIndex: idx, Previous: prev, Reason: "duplicate point index"}
			continue
		case idx < prev:
			broken[key] = &IntegrityError{Key: key, PointIndex: idx, Previous: prev, Reason: "decreasing point index"}
			continue
		}
		seen[key] = idx
	}
	return broken
}
