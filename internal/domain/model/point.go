package model

// EnrichedPoint is a scored observation together with how it was decided.
type EnrichedPoint struct {
	RallyObservation

	Rule      string `json:"rule"`
	Status    string `json:"status"`
	Situation string `json:"situation"`
	Error     string `json:"error,omitempty"`
}

// Summary counts the outcomes of one scoring run.
type Summary struct {
	Points       int            `json:"points"`
	Scored       int            `json:"scored"`
	Unresolved   int            `json:"unresolved"`
	Blocked      int            `json:"blocked"`
	Integrity    int            `json:"integrity_errors"`
	GamesWon     int            `json:"games_won"`
	Resets       int            `json:"server_change_resets"`
	RuleCounts   map[string]int `json:"rules"`
	MatchesCount int            `json:"matches"`
}

// Clean reports whether every point was scored.
func (s Summary) Clean() bool {
	return s.Unresolved == 0 && s.Blocked == 0 && s.Integrity == 0
}

// Report is the result of scoring a set of observations, in input order.
type Report struct {
	Points  []EnrichedPoint `json:"points"`
	Summary Summary         `json:"summary"`
}
