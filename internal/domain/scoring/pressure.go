package scoring

import (
	"strconv"
	"strings"
)

// Situation classifies the score a point was played at, from the server's
// side.
type Situation string

const (
	SituationLeading   Situation = "leading"
	SituationTrailing  Situation = "trailing"
	SituationTied      Situation = "tied"
	SituationAdvantage Situation = "advantage"
	SituationOther     Situation = "other"
)

// Classify parses an emitted score string. The game marker, empty scores and
// anything unparsable are SituationOther.
func Classify(score string) Situation {
	server, receiver, ok := strings.Cut(score, "-")
	if !ok {
		return SituationOther
	}
	if server == Advantage.String() || receiver == Advantage.String() {
		return SituationAdvantage
	}
	if server == receiver {
		return SituationTied
	}
	a, errA := strconv.Atoi(server)
	b, errB := strconv.Atoi(receiver)
	if errA != nil || errB != nil {
		return SituationOther
	}
	if a > b {
		return SituationLeading
	}
	return SituationTrailing
}
