// Command rallyscore scores recorded tennis points. "serve" runs the HTTP
// service; "score" scores a CSV or XLSX file offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/rallyscore/internal/adapters/http/api"
	"github.com/okian/rallyscore/internal/adapters/http/swagger"
	"github.com/okian/rallyscore/internal/adapters/ingest"
	"github.com/okian/rallyscore/internal/adapters/publisher"
	"github.com/okian/rallyscore/internal/adapters/repository"
	"github.com/okian/rallyscore/internal/app"
	"github.com/okian/rallyscore/internal/config"
	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/pkg/logger"
	"github.com/okian/rallyscore/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

// Exit codes.
const (
	exitOK       = 0
	exitUnscored = 1
	exitFailure  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches the subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return exitFailure
	}
	// Offline output may go to stdout, so logs stay on stderr there.
	logOut := io.Writer(os.Stdout)
	if cmd == "score" {
		logOut = stderr
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(logOut)); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	switch cmd {
	case "serve":
		if err := serve(ctx, cfg); err != nil {
			logger.Get().Error(ctx, "serve failed", logger.Error(err))
			return exitFailure
		}
		return exitOK
	case "score":
		return score(ctx, cfg, args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q; usage: rallyscore [serve|score -in FILE [-out FILE] [-persist]]\n", cmd)
		return exitFailure
	}
}

func newPipeline(cfg *config.Config) *app.Pipeline {
	return app.NewPipeline(
		app.WithParallelism(cfg.MatchParallelism),
		app.WithResetOnServerChange(cfg.ResetOnServerChange),
		app.WithPipelineLogger(logger.Named("pipeline")),
	)
}

// serve runs the HTTP service until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithPipeline(newPipeline(cfg)),
	}

	if cfg.DBPath != "" {
		store, err := repository.Open(ctx, cfg.DBPath, repository.WithLogger(logger.Named("repository")))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error(ctx, "closing store failed", logger.Error(err))
			}
		}()
		opts = append(opts, app.WithStore(store))
	}
	var pub publisher.Publisher = publisher.Nop{}
	if cfg.RedisURL != "" {
		rs, err := publisher.NewRedisStream(ctx, cfg.RedisURL, cfg.RedisStream)
		if err != nil {
			return err
		}
		pub = rs
	}
	opts = append(opts, app.WithPublisher(pub))

	// The service closes the publisher on Stop.
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		_ = pub.Close()
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	router := newRouter(ctx, svc)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return serveErr
}

func newRouter(ctx context.Context, svc *app.Service) *mux.Router {
	r := mux.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(svc, svc).Register(ctx, r)
	return r
}

// matchReader is implemented by readers that also carry match metadata.
type matchReader interface {
	ReadMatches(ctx context.Context) ([]model.Match, error)
}

// score scores one file offline. The exit code is exitUnscored when any
// point could not be scored.
func score(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	log := logger.Named("score")

	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input CSV or XLSX file")
	out := fs.String("out", "", "write scored points as CSV to this file, - for stdout")
	persist := fs.Bool("persist", false, "store matches and scored points in db_path")
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if *in == "" {
		fmt.Fprintln(stderr, "score: -in is required")
		return exitFailure
	}
	if *persist && cfg.DBPath == "" {
		fmt.Fprintln(stderr, "score: -persist needs db_path (RALLY_DB_PATH)")
		return exitFailure
	}

	rd, err := ingest.Open(*in)
	if err != nil {
		log.Error(ctx, "opening input failed", logger.String("path", *in), logger.Error(err))
		return exitFailure
	}
	defer func() { _ = rd.Close() }()

	rows, err := rd.Read(ctx)
	if err != nil {
		log.Error(ctx, "reading input failed", logger.String("path", *in), logger.Error(err))
		return exitFailure
	}

	// With -persist the file may continue games already stored, so their
	// stored points are scored together with the file.
	var (
		store  *repository.SQLiteStore
		stored []model.EnrichedPoint
	)
	if *persist {
		if store, err = repository.Open(ctx, cfg.DBPath, repository.WithLogger(logger.Named("repository"))); err != nil {
			log.Error(ctx, "opening store failed", logger.Error(err))
			return exitFailure
		}
		defer func() { _ = store.Close() }()
		if stored, err = storedRallies(ctx, store, rows); err != nil {
			log.Error(ctx, "loading stored rallies failed", logger.Error(err))
			return exitFailure
		}
	}

	report, err := newPipeline(cfg).Rescore(ctx, stored, rows)
	if err != nil {
		log.Error(ctx, "scoring failed", logger.Error(err))
		return exitFailure
	}

	if *out != "" {
		if err := writeCSV(*out, stdout, report.Points); err != nil {
			log.Error(ctx, "writing output failed", logger.String("path", *out), logger.Error(err))
			return exitFailure
		}
	}

	if *persist {
		var matches []model.Match
		if mr, ok := rd.(matchReader); ok {
			if matches, err = mr.ReadMatches(ctx); err != nil && !errors.Is(err, ingest.ErrSheetNotFound) {
				log.Error(ctx, "reading matches failed", logger.Error(err))
				return exitFailure
			}
		}
		if err := persistReport(ctx, store, filepath.Base(*in), matches, report.Points); err != nil {
			log.Error(ctx, "persisting failed", logger.Error(err))
			return exitFailure
		}
	}

	s := report.Summary
	fmt.Fprintf(stderr, "points=%d scored=%d unresolved=%d blocked=%d integrity_errors=%d games=%d resets=%d\n",
		s.Points, s.Scored, s.Unresolved, s.Blocked, s.Integrity, s.GamesWon, s.Resets)
	if !s.Clean() {
		return exitUnscored
	}
	return exitOK
}

func writeCSV(path string, stdout io.Writer, points []model.EnrichedPoint) error {
	if path == "-" {
		return ingest.NewCSVWriter(stdout).Write(points)
	}
	f, err := os.Create(path) //nolint:gosec // operator supplied path
	if err != nil {
		return err
	}
	if err := ingest.NewCSVWriter(f).Write(points); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// storedRallies loads the stored points of every match in rows.
func storedRallies(ctx context.Context, store repository.Store, rows []model.RallyObservation) ([]model.EnrichedPoint, error) {
	seen := make(map[int]bool)
	var out []model.EnrichedPoint
	for i := range rows {
		id := rows[i].MatchID
		if seen[id] {
			continue
		}
		seen[id] = true
		points, err := store.ListRallies(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, points...)
	}
	return out, nil
}

func persistReport(ctx context.Context, store repository.Store, batchID string, matches []model.Match, points []model.EnrichedPoint) error {
	for i := range matches {
		if err := store.SaveMatch(ctx, matches[i]); err != nil {
			return err
		}
	}
	written, err := store.SaveRallies(ctx, batchID, points)
	if err != nil {
		return err
	}
	logger.Named("score").Info(ctx, "persisted",
		logger.Int("matches", len(matches)),
		logger.Int("written", written),
		logger.Int("unchanged", len(points)-written))
	return nil
}

// startSystemMetricsUpdater updates system metrics until ctx is cancelled.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if n, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(n)
	}
	if n, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(n)
	}
}
