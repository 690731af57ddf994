// Package app wires the rule resolver and the score tracker into a pipeline
// and exposes the service the transports depend on.
package app

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/internal/domain/rules"
	"github.com/okian/rallyscore/internal/domain/scoring"
	"github.com/okian/rallyscore/pkg/logger"
	"github.com/okian/rallyscore/pkg/metrics"
)

// PipelineOption applies a configuration option to the Pipeline.
type PipelineOption func(*Pipeline)

// WithParallelism caps how many matches are tracked concurrently.
func WithParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithResetOnServerChange is passed through to the score tracker.
func WithResetOnServerChange(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.resetOnServerChange = enabled
	}
}

// WithPipelineLogger sets a custom logger for the pipeline.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline resolves point winners and then tracks the score of every game.
// It is safe for concurrent use.
type Pipeline struct {
	parallelism         int
	resetOnServerChange bool
	tracker             *scoring.Tracker
	logger              logger.Logger
}

// NewPipeline creates a pipeline with configuration options.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		parallelism:         runtime.NumCPU(),
		resetOnServerChange: true,
		logger:              logger.Get().Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracker = scoring.NewTracker(scoring.WithServerChangeReset(p.resetOnServerChange))
	return p
}

// matchRun is the slice of the input belonging to one match, in tracking order.
type matchRun struct {
	matchID int
	index   []int // positions in the input
}

// Run scores rows and returns one EnrichedPoint per row, in input order.
// Games are scored in (match, set, game) order with rows keeping their input
// order inside a game. Matches are independent and are tracked in parallel.
func (p *Pipeline) Run(ctx context.Context, rows []model.RallyObservation) (model.Report, error) {
	return p.run(ctx, rows, nil)
}

// Rescore scores rows together with the stored points of every game the rows
// touch, so a game that arrives over several batches is tracked from its
// first point. The report holds the rows and those stored points, grouped by
// game and ordered by point index, each stored point re-scored but keeping
// the rule that resolved it. A row replaces the stored point with the same
// index. Stored points of other games are not returned.
func (p *Pipeline) Rescore(ctx context.Context, stored []model.EnrichedPoint, rows []model.RallyObservation) (model.Report, error) {
	merged, keep := mergeStored(stored, rows)
	return p.run(ctx, merged, keep)
}

// run scores rows. keep maps input positions to the rule that already
// resolved them; such rows are resolved again but report the kept rule.
func (p *Pipeline) run(ctx context.Context, rows []model.RallyObservation, keep map[int]rules.Rule) (model.Report, error) {
	start := time.Now()
	defer func() {
		metrics.RecordPipelineLatency(float64(time.Since(start).Milliseconds()))
	}()

	resolved := rules.ResolveAll(rows)
	for i := range resolved {
		if rule, ok := keep[i]; ok {
			resolved[i].Rule = rule
			continue
		}
		metrics.RecordPointResolved(string(resolved[i].Rule))
	}

	runs := groupByMatch(resolved)
	points := make([]model.EnrichedPoint, len(rows))
	resets := make([]int, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for ri := range runs {
		run := runs[ri]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := p.trackMatch(gctx, run, resolved, points)
			resets[ri] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("pipeline", "tracker")
		return model.Report{}, err
	}

	report := model.Report{Points: points, Summary: summarize(points, len(runs))}
	for _, n := range resets {
		report.Summary.Resets += n
	}

	p.logger.Info(ctx, "rallies scored",
		logger.Int("points", report.Summary.Points),
		logger.Int("matches", report.Summary.MatchesCount),
		logger.Int("games", report.Summary.GamesWon),
		logger.Int("unresolved", report.Summary.Unresolved),
		logger.Int("blocked", report.Summary.Blocked),
		logger.Int("integrity", report.Summary.Integrity),
	)
	return report, nil
}

// trackMatch scores one match and writes its points into out at their input
// positions. Runs never share positions, so no locking is needed.
func (p *Pipeline) trackMatch(ctx context.Context, run matchRun, resolved []rules.Resolution, out []model.EnrichedPoint) (int, error) {
	rows := make([]model.RallyObservation, len(run.index))
	for i, pos := range run.index {
		rows[i] = resolved[pos].Observation
	}

	scored, err := p.tracker.Track(rows)
	if err != nil {
		return 0, fmt.Errorf("match %d: %w", run.matchID, err)
	}

	resets := 0
	reported := make(map[model.GroupKey]bool)
	for i, pos := range run.index {
		sc := scored[i]
		out[pos] = enrich(sc, resolved[pos].Rule)
		metrics.RecordPointStatus(string(sc.Status))

		if sc.GameWon {
			metrics.RecordGameCompleted()
		}
		if sc.Reset {
			resets++
			metrics.RecordServerChangeReset()
			p.logger.Warn(ctx, "server changed inside a game, score reset",
				logger.String("game", sc.Observation.Key().String()),
				logger.Int("point", sc.Observation.PointIndex),
			)
		}
		if sc.Err != nil && !reported[sc.Observation.Key()] {
			reported[sc.Observation.Key()] = true
			p.logger.Warn(ctx, "game not fully scored",
				logger.String("game", sc.Observation.Key().String()),
				logger.String("status", string(sc.Status)),
				logger.Error(sc.Err),
			)
		}
	}
	return resets, nil
}

func enrich(sc scoring.Scored, rule rules.Rule) model.EnrichedPoint {
	ep := model.EnrichedPoint{
		RallyObservation: sc.Observation,
		Rule:             string(rule),
		Status:           string(sc.Status),
		Situation:        string(scoring.SituationOther),
	}
	if sc.Status == scoring.StatusScored || sc.Status == scoring.StatusUnresolved {
		ep.Situation = string(scoring.Classify(sc.Before.String()))
	}
	if sc.Err != nil {
		ep.Error = sc.Err.Error()
	}
	return ep
}

// mergeStored interleaves the stored points of the games rows touch with
// the rows. Rows keep their relative order inside a game so ordering faults
// in a batch still reach the tracker; stored points slot in by point index.
func mergeStored(stored []model.EnrichedPoint, rows []model.RallyObservation) ([]model.RallyObservation, map[int]rules.Rule) {
	if len(stored) == 0 {
		return rows, nil
	}

	type pointID struct {
		key   model.GroupKey
		index int
	}
	var games []model.GroupKey
	fresh := make(map[model.GroupKey][]int)
	replaced := make(map[pointID]bool, len(rows))
	for i := range rows {
		key := rows[i].Key()
		if _, ok := fresh[key]; !ok {
			games = append(games, key)
		}
		fresh[key] = append(fresh[key], i)
		replaced[pointID{key, rows[i].PointIndex}] = true
	}

	prior := make(map[model.GroupKey][]model.EnrichedPoint)
	for i := range stored {
		key := stored[i].Key()
		if _, ok := fresh[key]; !ok || replaced[pointID{key, stored[i].PointIndex}] {
			continue
		}
		prior[key] = append(prior[key], stored[i])
	}
	if len(prior) == 0 {
		return rows, nil
	}

	merged := make([]model.RallyObservation, 0, len(rows)+len(stored))
	keep := make(map[int]rules.Rule)
	takeStored := func(ep *model.EnrichedPoint) {
		keep[len(merged)] = rules.Rule(ep.Rule)
		merged = append(merged, ep.RallyObservation)
	}
	for _, key := range games {
		old := prior[key]
		slices.SortStableFunc(old, func(a, b model.EnrichedPoint) int { return cmp.Compare(a.PointIndex, b.PointIndex) })
		j := 0
		for _, pos := range fresh[key] {
			for j < len(old) && old[j].PointIndex < rows[pos].PointIndex {
				takeStored(&old[j])
				j++
			}
			merged = append(merged, rows[pos])
		}
		for ; j < len(old); j++ {
			takeStored(&old[j])
		}
	}
	return merged, keep
}

// groupByMatch orders input positions by game key, keeping input order
// inside a game, and splits them into one run per match.
func groupByMatch(resolved []rules.Resolution) []matchRun {
	order := make([]int, len(resolved))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ka, kb := resolved[a].Observation.Key(), resolved[b].Observation.Key()
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		}
		return 0
	})

	var runs []matchRun
	for _, pos := range order {
		id := resolved[pos].Observation.MatchID
		if len(runs) == 0 || runs[len(runs)-1].matchID != id {
			runs = append(runs, matchRun{matchID: id})
		}
		last := &runs[len(runs)-1]
		last.index = append(last.index, pos)
	}
	return runs
}

func summarize(points []model.EnrichedPoint, matches int) model.Summary {
	s := model.Summary{
		Points:       len(points),
		RuleCounts:   make(map[string]int),
		MatchesCount: matches,
	}
	for i := range points {
		s.RuleCounts[points[i].Rule]++
		switch scoring.Status(points[i].Status) {
		case scoring.StatusScored:
			s.Scored++
			if points[i].ScoreString == scoring.GameMarker {
				s.GamesWon++
			}
		case scoring.StatusUnresolved:
			s.Unresolved++
		case scoring.StatusBlocked:
			s.Blocked++
		case scoring.StatusIntegrity:
			s.Integrity++
		}
	}
	return s
}
