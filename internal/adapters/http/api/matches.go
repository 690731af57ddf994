package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/rallyscore/internal/domain/model"
)

// MatchDependencies defines the interface for match metadata.
type MatchDependencies interface {
	SaveMatch(ctx context.Context, m model.Match) error
	GetMatch(ctx context.Context, id int) (model.Match, error)
	ListMatches(ctx context.Context) ([]model.Match, error)
}

// MatchesHandler handles match metadata requests.
type MatchesHandler struct {
	deps MatchDependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps MatchDependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

// HandlePut handles PUT /v1/matches/{match_id}.
func (h *MatchesHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var m model.Match
	if err := decode(w, r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if m.ID != 0 && m.ID != id {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: body match_id %d does not match path %d", ErrBadRequest, m.ID, id))
		return
	}
	m.ID = id
	if err := h.deps.SaveMatch(r.Context(), m); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleGet handles GET /v1/matches/{match_id}.
func (h *MatchesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	m, err := h.deps.GetMatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type matchesResponse struct {
	Matches []model.Match `json:"matches"`
}

// HandleList handles GET /v1/matches.
func (h *MatchesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ms, err := h.deps.ListMatches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ms == nil {
		ms = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matchesResponse{Matches: ms})
}
