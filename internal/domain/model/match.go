package model

// Match holds the metadata recorded for one played match.
type Match struct {
	ID              int    `json:"match_id"`
	Date            string `json:"date"` // YYYY-MM-DD
	Opponent        string `json:"opponent"`
	OpponentRanking int    `json:"opponent_ranking,omitempty"`
	Result          string `json:"result,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Surface         string `json:"surface,omitempty"`
	Weather         string `json:"weather,omitempty"`
	PreMatchFatigue int    `json:"pre_match_fatigue,omitempty"`
	SleepQuality    int    `json:"sleep_quality,omitempty"`
	RestDays        int    `json:"rest_days,omitempty"`
	Notes           string `json:"notes,omitempty"`
}
