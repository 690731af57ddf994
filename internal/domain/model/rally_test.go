package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	model "github.com/okian/rallyscore/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSide(t *testing.T) {
	convey.Convey("Given the side values", t, func() {
		convey.Convey("When asking for the opposite side", func() {
			convey.So(model.SideA.Other(), convey.ShouldEqual, model.SideB)
			convey.So(model.SideB.Other(), convey.ShouldEqual, model.SideA)
			convey.So(model.SideNone.Other(), convey.ShouldEqual, model.SideNone)
		})

		convey.Convey("When parsing sheet encodings", func() {
			for raw, want := range map[string]model.Side{
				"A": model.SideA, "b": model.SideB, "1": model.SideA,
				"0": model.SideB, "1.0": model.SideA, " ": model.SideNone,
			} {
				got, err := model.ParseSide(raw)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldEqual, want)
			}
		})

		convey.Convey("When parsing garbage", func() {
			_, err := model.ParseSide("C")
			convey.So(errors.Is(err, model.ErrInvalidSide), convey.ShouldBeTrue)
		})
	})
}

func TestTristate(t *testing.T) {
	convey.Convey("Given tristate spellings", t, func() {
		convey.Convey("Then missing and false stay distinct", func() {
			missing, err := model.ParseTristate("")
			convey.So(err, convey.ShouldBeNil)
			no, err := model.ParseTristate("0.0")
			convey.So(err, convey.ShouldBeNil)
			convey.So(missing, convey.ShouldEqual, model.Unknown)
			convey.So(no, convey.ShouldEqual, model.False)
			convey.So(missing.Known(), convey.ShouldBeFalse)
			convey.So(no.Known(), convey.ShouldBeTrue)
		})

		convey.Convey("Then Portuguese answers are understood", func() {
			yes, _ := model.ParseTristate("Sim")
			no, _ := model.ParseTristate("não")
			convey.So(yes, convey.ShouldEqual, model.True)
			convey.So(no, convey.ShouldEqual, model.False)
		})

		convey.Convey("Then unknown words are rejected", func() {
			_, err := model.ParseTristate("maybe")
			convey.So(errors.Is(err, model.ErrInvalidTristate), convey.ShouldBeTrue)
		})
	})
}

func TestRallyObservationJSON(t *testing.T) {
	convey.Convey("Given a JSON payload with nulls and the 1/0 side encoding", t, func() {
		payload := `{"match_id":3,"set_num":1,"game_num":2,"point_index":7,"server":1,
			"ace":null,"return_in":false,"rally_length":null,"point_winner":null}`

		var obs model.RallyObservation
		err := json.Unmarshal([]byte(payload), &obs)

		convey.Convey("Then optional fields decode as unknown", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(obs.Server, convey.ShouldEqual, model.SideA)
			convey.So(obs.Ace, convey.ShouldEqual, model.Unknown)
			convey.So(obs.ReturnIn, convey.ShouldEqual, model.False)
			convey.So(obs.RallyLength.Valid, convey.ShouldBeFalse)
			convey.So(obs.PointWinner, convey.ShouldEqual, model.SideNone)
			convey.So(obs.Key(), convey.ShouldResemble, model.GroupKey{MatchID: 3, SetNum: 1, GameNum: 2})
		})

		convey.Convey("Then encoding writes sides as letters and unknowns as null", func() {
			out, err := json.Marshal(obs)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(out), convey.ShouldContainSubstring, `"server":"A"`)
			convey.So(string(out), convey.ShouldContainSubstring, `"point_winner":null`)
			convey.So(string(out), convey.ShouldContainSubstring, `"ace":null`)
		})
	})
}

func TestOptionalIntJSON(t *testing.T) {
	convey.Convey("Given rally lengths in JSON", t, func() {
		var n model.OptionalInt

		convey.Convey("Then zero is a recorded length", func() {
			convey.So(json.Unmarshal([]byte(`0`), &n), convey.ShouldBeNil)
			convey.So(n, convey.ShouldResemble, model.Int(0))
		})

		convey.Convey("Then a negative length is rejected", func() {
			err := json.Unmarshal([]byte(`{"match_id":1,"set_num":1,"game_num":1,"point_index":1,"server":"A","rally_length":-2}`),
				&model.RallyObservation{})
			convey.So(errors.Is(err, model.ErrNegativeCount), convey.ShouldBeTrue)
		})
	})
}

func TestGroupKeyOrdering(t *testing.T) {
	convey.Convey("Given two group keys", t, func() {
		a := model.GroupKey{MatchID: 1, SetNum: 2, GameNum: 9}
		b := model.GroupKey{MatchID: 1, SetNum: 3, GameNum: 1}

		convey.So(a.Less(b), convey.ShouldBeTrue)
		convey.So(b.Less(a), convey.ShouldBeFalse)
		convey.So(a.Less(a), convey.ShouldBeFalse)
	})
}
