package app_test

import (
	"context"
	"testing"

	"github.com/okian/rallyscore/internal/app"
	"github.com/okian/rallyscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// obs builds a row served by A. winner may be SideNone.
func obs(match, set, game, idx int, winner model.Side) model.RallyObservation {
	return model.RallyObservation{
		MatchID: match, SetNum: set, GameNum: game, PointIndex: idx,
		Server: model.SideA, PointWinner: winner,
	}
}

func scores(points []model.EnrichedPoint) []string {
	out := make([]string, len(points))
	for i := range points {
		out[i] = points[i].ScoreString
	}
	return out
}

func TestPipeline_Run(t *testing.T) {
	Convey("Given a pipeline", t, func() {
		ctx := context.Background()
		p := app.NewPipeline(app.WithParallelism(2))

		Convey("When a service game is won to love", func() {
			rows := []model.RallyObservation{
				obs(1, 1, 1, 1, model.SideA), obs(1, 1, 1, 2, model.SideA),
				obs(1, 1, 1, 3, model.SideA), obs(1, 1, 1, 4, model.SideA),
			}
			report, err := p.Run(ctx, rows)

			Convey("Then scores are emitted before each point", func() {
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "15-0", "30-0", "Game"})
				So(report.Summary.Scored, ShouldEqual, 4)
				So(report.Summary.GamesWon, ShouldEqual, 1)
				So(report.Summary.Clean(), ShouldBeTrue)
				So(report.Points[1].Situation, ShouldEqual, "leading")
				So(report.Points[0].Situation, ShouldEqual, "tied")
			})
		})

		Convey("When winners must be inferred", func() {
			ace := obs(1, 1, 1, 1, model.SideNone)
			ace.Ace = model.True
			fault := obs(1, 1, 1, 2, model.SideNone)
			fault.ServiceFault = model.True
			returnOut := obs(1, 1, 1, 3, model.SideNone)
			returnOut.ReturnIn = model.False
			report, err := p.Run(ctx, []model.RallyObservation{ace, fault, returnOut})

			Convey("Then the rule and winner of each point are reported", func() {
				So(err, ShouldBeNil)
				So(report.Points[0].Rule, ShouldEqual, "ace")
				So(report.Points[0].PointWinner, ShouldEqual, model.SideA)
				So(report.Points[0].RallyLength, ShouldResemble, model.Int(1))
				So(report.Points[1].Rule, ShouldEqual, "service_fault")
				So(report.Points[1].PointWinner, ShouldEqual, model.SideB)
				So(report.Points[2].Rule, ShouldEqual, "return_out")
				So(scores(report.Points), ShouldResemble, []string{"0-0", "15-0", "15-15"})
				So(report.Summary.RuleCounts["ace"], ShouldEqual, 1)
			})
		})

		Convey("When a point cannot be resolved", func() {
			rows := []model.RallyObservation{
				obs(1, 1, 1, 1, model.SideA),
				obs(1, 1, 1, 2, model.SideNone),
				obs(1, 1, 1, 3, model.SideA),
				obs(1, 1, 2, 1, model.SideA),
			}
			report, err := p.Run(ctx, rows)

			Convey("Then the rest of the game is blocked and the next game is clean", func() {
				So(err, ShouldBeNil)
				So(report.Points[1].Status, ShouldEqual, "unresolved")
				So(report.Points[1].ScoreString, ShouldEqual, "15-0")
				So(report.Points[1].Error, ShouldContainSubstring, "point=2")
				So(report.Points[2].Status, ShouldEqual, "blocked")
				So(report.Points[2].ScoreString, ShouldEqual, "")
				So(report.Points[3].Status, ShouldEqual, "scored")
				So(report.Points[3].ScoreString, ShouldEqual, "0-0")
				So(report.Summary.Unresolved, ShouldEqual, 1)
				So(report.Summary.Blocked, ShouldEqual, 1)
				So(report.Summary.Clean(), ShouldBeFalse)
			})
		})

		Convey("When matches and games are interleaved", func() {
			rows := []model.RallyObservation{
				obs(2, 1, 1, 1, model.SideB),
				obs(1, 1, 2, 1, model.SideA),
				obs(1, 1, 1, 1, model.SideA),
				obs(2, 1, 1, 2, model.SideB),
				obs(1, 1, 1, 2, model.SideA),
			}
			report, err := p.Run(ctx, rows)

			Convey("Then each game is scored on its own and output keeps input order", func() {
				So(err, ShouldBeNil)
				So(report.Summary.MatchesCount, ShouldEqual, 2)
				So(report.Points[0].MatchID, ShouldEqual, 2)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "0-0", "0-0", "0-15", "15-0"})
			})
		})

		Convey("When a game repeats a point index", func() {
			rows := []model.RallyObservation{
				obs(1, 1, 1, 1, model.SideA),
				obs(1, 1, 1, 1, model.SideA),
				obs(1, 1, 2, 1, model.SideA),
			}
			report, err := p.Run(ctx, rows)

			Convey("Then only that game is rejected", func() {
				So(err, ShouldBeNil)
				So(report.Points[0].Status, ShouldEqual, "integrity_error")
				So(report.Points[1].Status, ShouldEqual, "integrity_error")
				So(report.Points[2].Status, ShouldEqual, "scored")
				So(report.Summary.Integrity, ShouldEqual, 2)
			})
		})

		Convey("When the server changes inside a game", func() {
			second := obs(1, 1, 1, 2, model.SideA)
			second.Server = model.SideB

			Convey("Then the score resets by default", func() {
				report, err := p.Run(ctx, []model.RallyObservation{obs(1, 1, 1, 1, model.SideA), second})
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "0-0"})
				So(report.Summary.Resets, ShouldEqual, 1)
			})

			Convey("Then the score carries over when resets are disabled", func() {
				keep := app.NewPipeline(app.WithResetOnServerChange(false))
				report, err := keep.Run(ctx, []model.RallyObservation{obs(1, 1, 1, 1, model.SideA), second})
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "15-0"})
				So(report.Summary.Resets, ShouldEqual, 0)
			})
		})

		Convey("When there is nothing to score", func() {
			report, err := p.Run(ctx, nil)

			Convey("Then the report is empty", func() {
				So(err, ShouldBeNil)
				So(report.Points, ShouldBeEmpty)
				So(report.Summary.Points, ShouldEqual, 0)
			})
		})
	})
}

// storedPoint is a point as the store returns it after an earlier run.
func storedPoint(match, set, game, idx int, winner model.Side, rule, score string) model.EnrichedPoint {
	return model.EnrichedPoint{
		RallyObservation: func() model.RallyObservation {
			o := obs(match, set, game, idx, winner)
			o.ScoreString = score
			return o
		}(),
		Rule:   rule,
		Status: "scored",
	}
}

func TestPipeline_Rescore(t *testing.T) {
	Convey("Given a pipeline and points stored by an earlier batch", t, func() {
		ctx := context.Background()
		p := app.NewPipeline()
		stored := []model.EnrichedPoint{
			storedPoint(9, 1, 1, 1, model.SideA, "fallback_return_out", "0-0"),
			storedPoint(9, 1, 1, 2, model.SideA, "recorded", "15-0"),
			storedPoint(9, 1, 2, 1, model.SideB, "recorded", "0-0"),
		}

		Convey("When the next batch continues the game", func() {
			rows := []model.RallyObservation{obs(9, 1, 1, 3, model.SideA), obs(9, 1, 1, 4, model.SideA)}
			report, err := p.Rescore(ctx, stored, rows)

			Convey("Then the game is scored from its first stored point", func() {
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "15-0", "30-0", "Game"})
				So(report.Points[2].PointIndex, ShouldEqual, 3)
				So(report.Summary.GamesWon, ShouldEqual, 1)
			})

			Convey("Then stored points keep their rule", func() {
				So(report.Points[0].Rule, ShouldEqual, "fallback_return_out")
				So(report.Summary.RuleCounts["fallback_return_out"], ShouldEqual, 1)
			})

			Convey("Then games the batch does not touch are left out", func() {
				for _, pt := range report.Points {
					So(pt.GameNum, ShouldEqual, 1)
				}
			})
		})

		Convey("When the batch fills in a point between stored ones", func() {
			later := storedPoint(9, 1, 1, 4, model.SideA, "recorded", "15-0")
			report, err := p.Rescore(ctx, append(stored, later), []model.RallyObservation{obs(9, 1, 1, 3, model.SideA)})

			Convey("Then it is tracked in point order", func() {
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0", "15-0", "30-0", "Game"})
			})
		})

		Convey("When the batch replaces a stored point", func() {
			report, err := p.Rescore(ctx, stored, []model.RallyObservation{obs(9, 1, 1, 2, model.SideB)})

			Convey("Then the new row wins and nothing is duplicated", func() {
				So(err, ShouldBeNil)
				So(report.Points, ShouldHaveLength, 2)
				So(report.Points[1].PointWinner, ShouldEqual, model.SideB)
				So(report.Points[1].Rule, ShouldEqual, "recorded")
			})
		})

		Convey("When the batch lists its points out of order", func() {
			rows := []model.RallyObservation{obs(9, 1, 1, 4, model.SideA), obs(9, 1, 1, 3, model.SideA)}
			report, err := p.Rescore(ctx, stored, rows)

			Convey("Then the game is an integrity error instead of a reordered score", func() {
				So(err, ShouldBeNil)
				So(report.Summary.Integrity, ShouldEqual, len(report.Points))
			})
		})

		Convey("When nothing is stored", func() {
			rows := []model.RallyObservation{obs(9, 1, 1, 1, model.SideA)}
			report, err := p.Rescore(ctx, nil, rows)

			Convey("Then it behaves like Run", func() {
				So(err, ShouldBeNil)
				So(scores(report.Points), ShouldResemble, []string{"0-0"})
			})
		})
	})
}
