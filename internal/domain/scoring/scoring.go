// Package scoring tracks the running score of a tennis game.
//
// The machine state is a pair of counters, one for the server and one for
// the receiver. Transition is a pure function over that pair; Tracker drives
// it across an ordered sequence of points, one game at a time.
package scoring

import (
	"fmt"

	"github.com/okian/rallyscore/internal/domain/model"
)

// GameMarker is emitted for the point that wins the game.
const GameMarker = "Game"

// Point is one side's counter within a game.
type Point uint8

const (
	Love Point = iota
	Fifteen
	Thirty
	Forty
	Advantage
)

func (p Point) String() string {
	switch p {
	case Love:
		return "0"
	case Fifteen:
		return "15"
	case Thirty:
		return "30"
	case Forty:
		return "40"
	case Advantage:
		return "ADV"
	default:
		return fmt.Sprintf("Point(%d)", uint8(p))
	}
}

func (p Point) valid() bool { return p <= Advantage }

// Role is a side relative to who served the point.
type Role uint8

const (
	RoleServer Role = iota
	RoleReceiver
)

// RoleOf translates a point winner into a role for the given server.
// ok is false when either side is unknown.
func RoleOf(server, winner model.Side) (Role, bool) {
	if !server.Valid() || !winner.Valid() {
		return 0, false
	}
	if winner == server {
		return RoleServer, true
	}
	return RoleReceiver, true
}

// State is the score of a game in progress. The zero value is 0-0.
type State struct {
	Server   Point
	Receiver Point
}

// String renders "<server>-<receiver>", e.g. "30-15" or "40-ADV".
func (s State) String() string {
	return s.Server.String() + "-" + s.Receiver.String()
}

func (s State) valid() bool {
	if !s.Server.valid() || !s.Receiver.valid() {
		return false
	}
	switch {
	case s.Server == Advantage:
		return s.Receiver == Forty
	case s.Receiver == Advantage:
		return s.Server == Forty
	}
	return true
}

// Transition applies one point won by winner. gameWon is the terminal
// signal; when set, the returned state is already back at 0-0.
func Transition(s State, winner Role) (next State, gameWon bool, err error) {
	if !s.valid() {
		return s, false, fmt.Errorf("%w: %s", ErrInvalidState, s)
	}

	own, other := &s.Server, &s.Receiver
	switch winner {
	case RoleServer:
	case RoleReceiver:
		own, other = &s.Receiver, &s.Server
	default:
		return s, false, fmt.Errorf("%w: role %d", ErrInvalidState, winner)
	}

	switch *own {
	case Love, Fifteen, Thirty:
		*own++
		return s, false, nil
	case Forty:
		switch *other {
		case Forty:
			*own = Advantage
			return s, false, nil
		case Advantage:
			*other = Forty
			return s, false, nil
		default:
			return State{}, true, nil
		}
	case Advantage:
		return State{}, true, nil
	}
	return s, false, fmt.Errorf("%w: %s", ErrInvalidState, s)
}
