package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/internal/domain/scoring"
)

// ScoreDependencies defines the interface for synchronous scoring.
type ScoreDependencies interface {
	Score(ctx context.Context, rows []model.RallyObservation) (model.Report, error)
}

// ScoreHandler handles scoring requests.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleScore handles POST /v1/score. Nothing is stored.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	report, err := h.deps.Score(r.Context(), req.Observations)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type classifyResponse struct {
	Score     string `json:"score"`
	Situation string `json:"situation"`
}

// HandleClassify handles GET /v1/score/classify?score=30-15.
func (h *ScoreHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	score := strings.TrimSpace(r.URL.Query().Get("score"))
	if score == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing score", ErrBadRequest))
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Score: score, Situation: string(scoring.Classify(score))})
}
