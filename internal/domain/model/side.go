// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side identifies one of the two fixed sides of a match.
// SideNone is the explicit unresolved marker, never a stale default.
type Side uint8

const (
	SideNone Side = iota
	SideA
	SideB
)

// Other returns the opposite side. SideNone has no opposite.
func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return SideNone
	}
}

// Valid reports whether s names a real side.
func (s Side) Valid() bool { return s == SideA || s == SideB }

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return ""
	}
}

// ParseSide accepts "A"/"B" and the 1/0 encoding used by the scouting
// sheets (1 is the tracked player, 0 the opponent). Empty input is SideNone.
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "NAN", "NULL":
		return SideNone, nil
	case "A", "1", "1.0":
		return SideA, nil
	case "B", "0", "0.0":
		return SideB, nil
	}
	return SideNone, fmt.Errorf("%w: %q", ErrInvalidSide, raw)
}

func (s Side) MarshalJSON() ([]byte, error) {
	if s == SideNone {
		return []byte("null"), nil
	}
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = SideNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		var n int
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return fmt.Errorf("%w: %s", ErrInvalidSide, string(b))
		}
		raw = fmt.Sprint(n)
	}
	v, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Tristate is an optional boolean. Unknown and False are distinct.
type Tristate uint8

const (
	Unknown Tristate = iota
	True
	False
)

// Bool converts a plain bool.
func Bool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Known reports whether the value was recorded.
func (t Tristate) Known() bool { return t != Unknown }

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return ""
	}
}

// ParseTristate understands the spellings found in scouting sheets:
// 1/0, 1.0/0.0, true/false, yes/no, sim/não. Empty input is Unknown.
func ParseTristate(raw string) (Tristate, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "nan", "null":
		return Unknown, nil
	case "1", "1.0", "true", "t", "yes", "y", "sim", "s":
		return True, nil
	case "0", "0.0", "false", "f", "no", "n", "não", "nao":
		return False, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrInvalidTristate, raw)
}

func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *Tristate) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*t = Unknown
	case "true", "1":
		*t = True
	case "false", "0":
		*t = False
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTristate, string(b))
	}
	return nil
}
