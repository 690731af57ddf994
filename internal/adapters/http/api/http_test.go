package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rallyscore/internal/adapters/http/api"
	"github.com/okian/rallyscore/internal/adapters/repository"
	"github.com/okian/rallyscore/internal/app"
	"github.com/okian/rallyscore/internal/domain/model"
)

type mockDeps struct {
	report    model.Report
	scoreErr  error
	submitErr error
	seen      map[string]bool

	lastMatch int
	lastKey   string
	lastRows  []model.RallyObservation

	matches map[int]model.Match
	rallies map[int][]model.EnrichedPoint
	saveErr error
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		seen:    map[string]bool{},
		matches: map[int]model.Match{},
		rallies: map[int][]model.EnrichedPoint{},
	}
}

func (m *mockDeps) Score(_ context.Context, rows []model.RallyObservation) (model.Report, error) {
	m.lastRows = rows
	return m.report, m.scoreErr
}

func (m *mockDeps) Submit(_ context.Context, matchID int, key string, rows []model.RallyObservation) (app.Submission, error) {
	m.lastMatch, m.lastKey, m.lastRows = matchID, key, rows
	if m.submitErr != nil {
		return app.Submission{}, m.submitErr
	}
	if key == "" {
		key = "generated"
	}
	sub := app.Submission{BatchID: key, Points: len(rows), Duplicate: m.seen[key]}
	m.seen[key] = true
	return sub, nil
}

func (m *mockDeps) SaveMatch(_ context.Context, match model.Match) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.matches[match.ID] = match
	return nil
}

func (m *mockDeps) GetMatch(_ context.Context, id int) (model.Match, error) {
	match, ok := m.matches[id]
	if !ok {
		return model.Match{}, fmt.Errorf("%w: match %d", repository.ErrNotFound, id)
	}
	return match, nil
}

func (m *mockDeps) ListMatches(context.Context) ([]model.Match, error) {
	var out []model.Match
	for _, match := range m.matches {
		out = append(out, match)
	}
	return out, nil
}

func (m *mockDeps) ListRallies(_ context.Context, matchID int) ([]model.EnrichedPoint, error) {
	return m.rallies[matchID], nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any { return map[string]any{"queue_len": 3} }

func newRouter(deps *mockDeps) *mux.Router {
	r := mux.NewRouter()
	api.NewServer(deps, mockStats{}).Register(context.Background(), r)
	return r
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const batchBody = `{"observations":[
	{"match_id":0,"set_num":1,"game_num":1,"point_index":1,"server":"A","ace":true},
	{"match_id":0,"set_num":1,"game_num":1,"point_index":2,"server":"A","point_winner":"B"}
]}`

func TestScoreEndpoint(t *testing.T) {
	Convey("Given the scoring endpoint", t, func() {
		deps := newMockDeps()
		deps.report = model.Report{Summary: model.Summary{Points: 2, Scored: 2}}
		r := newRouter(deps)

		Convey("A valid body returns the report", func() {
			w := do(r, http.MethodPost, "/v1/score", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastRows, ShouldHaveLength, 2)
			So(deps.lastRows[0].Server, ShouldEqual, model.SideA)
			So(deps.lastRows[0].Ace, ShouldEqual, model.True)

			var got model.Report
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got.Summary.Scored, ShouldEqual, 2)
		})

		Convey("Malformed JSON is a bad request", func() {
			w := do(r, http.MethodPost, "/v1/score", `{"observations":`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "bad_request")
		})

		Convey("A negative rally length is a bad request", func() {
			body := `{"observations":[{"match_id":1,"set_num":1,"game_num":1,"point_index":1,"server":"A","rally_length":-1}]}`
			w := do(r, http.MethodPost, "/v1/score", body, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "negative count")
			So(deps.lastRows, ShouldBeNil)
		})

		Convey("An empty batch is a bad request", func() {
			deps.scoreErr = app.ErrEmptyBatch
			w := do(r, http.MethodPost, "/v1/score", `{"observations":[]}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET is not allowed", func() {
			w := do(r, http.MethodGet, "/v1/score", "", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestClassifyEndpoint(t *testing.T) {
	Convey("Given the classify endpoint", t, func() {
		r := newRouter(newMockDeps())

		cases := map[string]string{
			"30-15":  "leading",
			"15-40":  "trailing",
			"30-30":  "tied",
			"ADV-40": "advantage",
			"game":   "other",
		}
		for score, want := range cases {
			w := do(r, http.MethodGet, "/v1/score/classify?score="+score, "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"situation":"`+want+`"`)
		}

		Convey("A missing score is a bad request", func() {
			w := do(r, http.MethodGet, "/v1/score/classify", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRalliesEndpoints(t *testing.T) {
	Convey("Given the rallies endpoints", t, func() {
		deps := newMockDeps()
		r := newRouter(deps)

		Convey("A new batch is accepted", func() {
			w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, map[string]string{api.IdempotencyHeader: "b-1"})
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.lastMatch, ShouldEqual, 7)
			So(deps.lastKey, ShouldEqual, "b-1")
			So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)
			So(w.Body.String(), ShouldContainSubstring, `"batch_id":"b-1"`)

			Convey("And a repeated key is acknowledged as a duplicate", func() {
				w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, map[string]string{api.IdempotencyHeader: "b-1"})
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"duplicate"`)
			})
		})

		Convey("A full queue maps to 429", func() {
			deps.submitErr = fmt.Errorf("%w: queue full", app.ErrBackpressure)
			w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, "backpressure")
		})

		Convey("A row from another match is a bad request", func() {
			deps.submitErr = app.ErrMatchMismatch
			w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A stopped service is unavailable", func() {
			deps.submitErr = app.ErrNotStarted
			w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("An unexpected error is internal", func() {
			deps.submitErr = errors.New("boom")
			w := do(r, http.MethodPost, "/v1/matches/7/rallies", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("A non-numeric match id is a bad request", func() {
			w := do(r, http.MethodPost, "/v1/matches/abc/rallies", batchBody, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			w = do(r, http.MethodGet, "/v1/matches/0/rallies", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Stored rallies are listed", func() {
			deps.rallies[7] = []model.EnrichedPoint{{
				RallyObservation: model.RallyObservation{MatchID: 7, SetNum: 1, GameNum: 1, PointIndex: 1, Server: model.SideA},
				Rule:             "ace",
				Status:           "scored",
			}}
			w := do(r, http.MethodGet, "/v1/matches/7/rallies", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"rule":"ace"`)

			w = do(r, http.MethodGet, "/v1/matches/8/rallies", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"rallies":[]`)
		})
	})
}

func TestMatchesEndpoints(t *testing.T) {
	Convey("Given the matches endpoints", t, func() {
		deps := newMockDeps()
		r := newRouter(deps)

		Convey("PUT stores the match under the path id", func() {
			w := do(r, http.MethodPut, "/v1/matches/3", `{"date":"2024-05-01","opponent":"Silva"}`, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.matches[3].Opponent, ShouldEqual, "Silva")
			So(deps.matches[3].ID, ShouldEqual, 3)

			Convey("And GET returns it", func() {
				w := do(r, http.MethodGet, "/v1/matches/3", "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"opponent":"Silva"`)
			})

			Convey("And the list contains it", func() {
				w := do(r, http.MethodGet, "/v1/matches", "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"match_id":3`)
			})
		})

		Convey("A body id that disagrees with the path is rejected", func() {
			w := do(r, http.MethodPut, "/v1/matches/3", `{"match_id":4}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.matches, ShouldBeEmpty)
		})

		Convey("An invalid match from the store is a bad request", func() {
			deps.saveErr = repository.ErrInvalidMatch
			w := do(r, http.MethodPut, "/v1/matches/3", `{"date":"yesterday"}`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An unknown match is not found", func() {
			w := do(r, http.MethodGet, "/v1/matches/99", "", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An empty list is an empty array", func() {
			w := do(r, http.MethodGet, "/v1/matches", "", nil)
			So(w.Body.String(), ShouldContainSubstring, `"matches":[]`)
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		r := newRouter(newMockDeps())

		Convey("/stats returns the provider's map", func() {
			w := do(r, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"queue_len":3`)
		})

		Convey("/healthz and /metrics serve the metrics exposition", func() {
			for _, path := range []string{"/healthz", "/metrics"} {
				w := do(r, http.MethodGet, path, "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}
