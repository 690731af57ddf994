// Package rules infers missing point data from the flags recorded for a rally.
//
// Resolve is a pure function of one observation. It never looks at other
// rows, so callers may resolve rows in any order or in parallel.
package rules

import "github.com/okian/rallyscore/internal/domain/model"

// Defaults written by the ace rule when the sheet left them blank.
const (
	AceOutcome   = "Ace"
	AceShot      = "Serve"
	aceRallySize = 1
	longRally    = 2
)

// Rule names the inference that decided the point winner.
type Rule string

const (
	RuleRecorded             Rule = "recorded"
	RuleAce                  Rule = "ace"
	RuleReturnOut            Rule = "return_out"
	RuleServiceFault         Rule = "service_fault"
	RuleFallbackReturnOut    Rule = "fallback_return_out"
	RuleFallbackServiceFault Rule = "fallback_service_fault"
	RuleUnresolved           Rule = "unresolved"
)

// Resolution is the outcome of applying the rules to one observation.
type Resolution struct {
	Observation model.RallyObservation
	Rule        Rule
}

// Resolved reports whether a point winner is known.
func (r Resolution) Resolved() bool { return r.Observation.PointWinner.Valid() }

// Resolve applies the inference rules in priority order and returns the
// enriched copy. Later rules observe what earlier ones wrote.
func Resolve(obs model.RallyObservation) Resolution { //nolint:gocritic // value semantics keep Resolve pure
	rule := RuleUnresolved
	if obs.PointWinner.Valid() {
		rule = RuleRecorded
	} else {
		obs.PointWinner = model.SideNone
	}
	server := obs.Server.Valid()

	// 1. ace
	if obs.Ace == model.True {
		if obs.PointOutcomeType == "" {
			obs.PointOutcomeType = AceOutcome
		}
		if obs.WinningShot == "" {
			obs.WinningShot = AceShot
		}
		obs.ShotDirection = ""
		obs.ReturnIn = model.False
		obs.ServiceFault = model.False
		obs.RallyLength = model.Int(aceRallySize)
		if server {
			obs.PointWinner = obs.Server
			rule = RuleAce
		}
	}

	// 2. a first serve in cannot be a fault
	if obs.FirstServeIn == model.True {
		obs.ServiceFault = model.False
	}

	// 3. return out: server takes the point
	if obs.ReturnIn == model.False && server && rule != RuleAce {
		obs.PointWinner = obs.Server
		rule = RuleReturnOut
	}

	// 4. service fault: receiver takes the point
	if obs.ServiceFault == model.True && server {
		obs.PointWinner = obs.Server.Other()
		rule = RuleServiceFault
	}

	// 5. a rally longer than two shots means the return landed
	if obs.RallyLength.Valid && obs.RallyLength.Value > longRally {
		obs.ReturnIn = model.True
	}

	// 6. fallback, only while still unresolved
	if !obs.PointWinner.Valid() && server {
		switch {
		case obs.ReturnIn == model.False:
			obs.PointWinner = obs.Server
			rule = RuleFallbackReturnOut
		case obs.ServiceFault == model.True:
			obs.PointWinner = obs.Server.Other()
			rule = RuleFallbackServiceFault
		}
	}

	return Resolution{Observation: obs, Rule: rule}
}

// ResolveAll resolves every observation, preserving order.
func ResolveAll(in []model.RallyObservation) []Resolution {
	out := make([]Resolution, len(in))
	for i := range in {
		out[i] = Resolve(in[i])
	}
	return out
}
