// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/rallyscore/internal/adapters/repository"
	"github.com/okian/rallyscore/internal/app"
	"github.com/okian/rallyscore/internal/domain/model"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Score(ctx context.Context, rows []model.RallyObservation) (model.Report, error)
	Submit(ctx context.Context, matchID int, key string, rows []model.RallyObservation) (app.Submission, error)

	SaveMatch(ctx context.Context, m model.Match) error
	GetMatch(ctx context.Context, id int) (model.Match, error)
	ListMatches(ctx context.Context) ([]model.Match, error)
	ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	scoreHandler   *ScoreHandler
	ralliesHandler *RalliesHandler
	matchesHandler *MatchesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		scoreHandler:   NewScoreHandler(deps),
		ralliesHandler: NewRalliesHandler(deps),
		matchesHandler: NewMatchesHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.healthHandler.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/score", MetricsMiddleware(s.scoreHandler.HandleScore, "score")).Methods(http.MethodPost)
	v1.HandleFunc("/score/classify", MetricsMiddleware(s.scoreHandler.HandleClassify, "classify")).Methods(http.MethodGet)
	v1.HandleFunc("/matches", MetricsMiddleware(s.matchesHandler.HandleList, "matches")).Methods(http.MethodGet)
	v1.HandleFunc("/matches/{match_id}", MetricsMiddleware(s.matchesHandler.HandleGet, "match")).Methods(http.MethodGet)
	v1.HandleFunc("/matches/{match_id}", MetricsMiddleware(s.matchesHandler.HandlePut, "match")).Methods(http.MethodPut)
	v1.HandleFunc("/matches/{match_id}/rallies", MetricsMiddleware(s.ralliesHandler.HandleSubmit, "rallies")).Methods(http.MethodPost)
	v1.HandleFunc("/matches/{match_id}/rallies", MetricsMiddleware(s.ralliesHandler.HandleList, "rallies")).Methods(http.MethodGet)
}

// observationsRequest is the body of POST /v1/score and POST .../rallies.
type observationsRequest struct {
	Observations []model.RallyObservation `json:"observations"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and store errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, app.ErrEmptyBatch),
		errors.Is(err, app.ErrMatchMismatch),
		errors.Is(err, repository.ErrInvalidMatch):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, app.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, app.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// matchID parses the {match_id} path variable.
func matchID(r *http.Request) (int, error) {
	raw := mux.Vars(r)["match_id"]
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: match_id must be a positive integer, got %q", ErrBadRequest, raw)
	}
	return id, nil
}
