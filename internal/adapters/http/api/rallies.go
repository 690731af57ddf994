package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/rallyscore/internal/app"
	"github.com/okian/rallyscore/internal/domain/model"
)

// IdempotencyHeader carries the client's batch id.
const IdempotencyHeader = "Idempotency-Key"

// RallyDependencies defines the interface for rally submission and reads.
type RallyDependencies interface {
	Submit(ctx context.Context, matchID int, key string, rows []model.RallyObservation) (app.Submission, error)
	ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error)
}

// RalliesHandler handles rally requests.
type RalliesHandler struct {
	deps RallyDependencies
}

// NewRalliesHandler creates a new rallies handler.
func NewRalliesHandler(deps RallyDependencies) *RalliesHandler {
	return &RalliesHandler{deps: deps}
}

type ackResponse struct {
	Status string `json:"status"`
	app.Submission
}

// HandleSubmit handles POST /v1/matches/{match_id}/rallies.
func (h *RalliesHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req observationsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	sub, err := h.deps.Submit(r.Context(), id, strings.TrimSpace(r.Header.Get(IdempotencyHeader)), req.Observations)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sub.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Submission: sub})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Submission: sub})
}

type ralliesResponse struct {
	MatchID int                   `json:"match_id"`
	Rallies []model.EnrichedPoint `json:"rallies"`
}

// HandleList handles GET /v1/matches/{match_id}/rallies.
func (h *RalliesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rallies, err := h.deps.ListRallies(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rallies == nil {
		rallies = []model.EnrichedPoint{}
	}
	writeJSON(w, http.StatusOK, ralliesResponse{MatchID: id, Rallies: rallies})
}
