package rules_test

import (
	"testing"

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/internal/domain/rules"
	. "github.com/smartystreets/goconvey/convey"
)

func point(server model.Side) model.RallyObservation {
	return model.RallyObservation{MatchID: 1, SetNum: 1, GameNum: 1, PointIndex: 1, Server: server}
}

func TestResolve_Ace(t *testing.T) {
	Convey("Given an ace with nothing else recorded", t, func() {
		obs := point(model.SideB)
		obs.Ace = model.True
		obs.ShotDirection = "cross"

		res := rules.Resolve(obs)

		Convey("Then the server wins and the dependent fields are normalised", func() {
			So(res.Resolved(), ShouldBeTrue)
			So(res.Rule, ShouldEqual, rules.RuleAce)
			So(res.Observation.PointWinner, ShouldEqual, model.SideB)
			So(res.Observation.RallyLength, ShouldResemble, model.Int(1))
			So(res.Observation.ServiceFault, ShouldEqual, model.False)
			So(res.Observation.ReturnIn, ShouldEqual, model.False)
			So(res.Observation.ShotDirection, ShouldEqual, "")
			So(res.Observation.PointOutcomeType, ShouldEqual, rules.AceOutcome)
			So(res.Observation.WinningShot, ShouldEqual, rules.AceShot)
		})

		Convey("Then the input is left untouched", func() {
			So(obs.PointWinner, ShouldEqual, model.SideNone)
			So(obs.ShotDirection, ShouldEqual, "cross")
		})

		Convey("Then resolving again changes nothing", func() {
			again := rules.Resolve(res.Observation)
			So(again, ShouldResemble, res)
		})
	})

	Convey("Given an ace with an outcome already typed in", t, func() {
		obs := point(model.SideA)
		obs.Ace = model.True
		obs.PointOutcomeType = "Unreturnable"
		obs.WinningShot = "Kick serve"

		res := rules.Resolve(obs)

		Convey("Then the recorded categories are kept", func() {
			So(res.Observation.PointOutcomeType, ShouldEqual, "Unreturnable")
			So(res.Observation.WinningShot, ShouldEqual, "Kick serve")
		})
	})
}

func TestResolve_Flags(t *testing.T) {
	Convey("Given a first serve in marked as a fault", t, func() {
		obs := point(model.SideA)
		obs.FirstServeIn = model.True
		obs.ServiceFault = model.True

		res := rules.Resolve(obs)

		Convey("Then the fault is cleared and nothing decides the point", func() {
			So(res.Observation.ServiceFault, ShouldEqual, model.False)
			So(res.Resolved(), ShouldBeFalse)
			So(res.Rule, ShouldEqual, rules.RuleUnresolved)
		})
	})

	Convey("Given a return that went out", t, func() {
		obs := point(model.SideA)
		obs.ReturnIn = model.False

		res := rules.Resolve(obs)

		So(res.Observation.PointWinner, ShouldEqual, model.SideA)
		So(res.Rule, ShouldEqual, rules.RuleReturnOut)
	})

	Convey("Given a service fault", t, func() {
		obs := point(model.SideA)
		obs.ServiceFault = model.True

		res := rules.Resolve(obs)

		So(res.Observation.PointWinner, ShouldEqual, model.SideB)
		So(res.Rule, ShouldEqual, rules.RuleServiceFault)
	})

	Convey("Given a long rally with the return flag missing", t, func() {
		obs := point(model.SideA)
		obs.RallyLength = model.Int(7)

		res := rules.Resolve(obs)

		Convey("Then the return is inferred in but the winner is not guessed", func() {
			So(res.Observation.ReturnIn, ShouldEqual, model.True)
			So(res.Resolved(), ShouldBeFalse)
		})
	})

	Convey("Given a rally of exactly two shots", t, func() {
		obs := point(model.SideA)
		obs.RallyLength = model.Int(2)

		res := rules.Resolve(obs)

		So(res.Observation.ReturnIn, ShouldEqual, model.Unknown)
	})
}

func TestResolve_WinnerPrecedence(t *testing.T) {
	Convey("Given a recorded winner and no decisive flags", t, func() {
		obs := point(model.SideA)
		obs.PointWinner = model.SideB
		obs.ReturnIn = model.True

		res := rules.Resolve(obs)

		Convey("Then the fallback does not overwrite it", func() {
			So(res.Observation.PointWinner, ShouldEqual, model.SideB)
			So(res.Rule, ShouldEqual, rules.RuleRecorded)
		})
	})

	Convey("Given a return out that later shows a long rally", t, func() {
		obs := point(model.SideB)
		obs.ReturnIn = model.False
		obs.RallyLength = model.Int(5)

		res := rules.Resolve(obs)

		Convey("Then the winner set by the return rule survives", func() {
			So(res.Observation.PointWinner, ShouldEqual, model.SideB)
			So(res.Observation.ReturnIn, ShouldEqual, model.True)
			So(res.Rule, ShouldEqual, rules.RuleReturnOut)
		})
	})

	Convey("Given both a return out and a service fault", t, func() {
		obs := point(model.SideA)
		obs.ReturnIn = model.False
		obs.ServiceFault = model.True

		res := rules.Resolve(obs)

		Convey("Then the higher numbered fault rule wins", func() {
			So(res.Observation.PointWinner, ShouldEqual, model.SideB)
			So(res.Rule, ShouldEqual, rules.RuleServiceFault)
		})
	})

	Convey("Given a row with no server recorded", t, func() {
		obs := point(model.SideNone)
		obs.Ace = model.True

		res := rules.Resolve(obs)

		Convey("Then no server relative winner is invented", func() {
			So(res.Resolved(), ShouldBeFalse)
			So(res.Observation.RallyLength, ShouldResemble, model.Int(1))
		})
	})
}

func TestResolve_Unresolved(t *testing.T) {
	Convey("Given a return in and no fault with no other signal", t, func() {
		obs := point(model.SideA)
		obs.ReturnIn = model.True
		obs.ServiceFault = model.False

		res := rules.Resolve(obs)

		Convey("Then the row is marked unresolved", func() {
			So(res.Resolved(), ShouldBeFalse)
			So(res.Rule, ShouldEqual, rules.RuleUnresolved)
			So(res.Observation.PointWinner, ShouldEqual, model.SideNone)
		})
	})
}

func TestResolveAll(t *testing.T) {
	Convey("Given several rows", t, func() {
		a := point(model.SideA)
		a.Ace = model.True
		b := point(model.SideA)
		b.PointIndex = 2
		b.ServiceFault = model.True

		out := rules.ResolveAll([]model.RallyObservation{a, b})

		So(len(out), ShouldEqual, 2)
		So(out[0].Observation.PointWinner, ShouldEqual, model.SideA)
		So(out[1].Observation.PointWinner, ShouldEqual, model.SideB)
		So(out[1].Observation.PointIndex, ShouldEqual, 2)
	})
}
