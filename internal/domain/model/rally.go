package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OptionalInt is a non-negative count that may not have been recorded.
type OptionalInt struct {
	Value int
	Valid bool
}

// Int returns a recorded OptionalInt.
func Int(v int) OptionalInt { return OptionalInt{Value: v, Valid: true} }

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptionalInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = OptionalInt{}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, v)
	}
	*o = Int(v)
	return nil
}

// RallyObservation is one recorded point.
type RallyObservation struct {
	MatchID    int `json:"match_id"`
	SetNum     int `json:"set_num"`
	GameNum    int `json:"game_num"`
	PointIndex int `json:"point_index"` // strictly increasing within a game, gaps allowed

	Server Side `json:"server"`

	Ace           Tristate `json:"ace"`
	FirstServeIn  Tristate `json:"first_serve_in"`
	ServiceFault  Tristate `json:"service_fault"`
	ReturnIn      Tristate `json:"return_in"`
	BreakPoint    Tristate `json:"break_point"`
	ApproachedNet Tristate `json:"approached_net"`

	// Free-form categories, empty means absent.
	PointOutcomeType string `json:"point_outcome_type,omitempty"`
	WinningShot      string `json:"winning_shot,omitempty"`
	ShotDirection    string `json:"shot_direction,omitempty"`
	ServeDirection   string `json:"serve_direction,omitempty"`

	RallyLength OptionalInt `json:"rally_length"`

	PointWinner Side `json:"point_winner"`

	// ScoreString is written by the score tracker only.
	ScoreString string `json:"score,omitempty"`
}

// Key returns the scoring group the observation belongs to.
func (o *RallyObservation) Key() GroupKey {
	return GroupKey{MatchID: o.MatchID, SetNum: o.SetNum, GameNum: o.GameNum}
}

// GroupKey identifies one game: the scope of a scoring sequence.
type GroupKey struct {
	MatchID int `json:"match_id"`
	SetNum  int `json:"set_num"`
	GameNum int `json:"game_num"`
}

// Less orders keys by match, then set, then game.
func (k GroupKey) Less(o GroupKey) bool {
	if k.MatchID != o.MatchID {
		return k.MatchID < o.MatchID
	}
	if k.SetNum != o.SetNum {
		return k.SetNum < o.SetNum
	}
	return k.GameNum < o.GameNum
}

func (k GroupKey) String() string {
	return fmt.Sprintf("match=%d set=%d game=%d", k.MatchID, k.SetNum, k.GameNum)
}

// Batch is a unit of asynchronous scoring work for one match.
type Batch struct {
	ID           string
	MatchID      int
	Observations []RallyObservation
	ReceivedAt   time.Time
}
