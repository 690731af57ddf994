// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and RALLY_ environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory batch queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the batch id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MatchParallelism caps how many matches one pipeline run scores at once.
	MatchParallelism int `koanf:"match_parallelism"`

	// ResetOnServerChange resets a game's score when the server changes mid-game.
	ResetOnServerChange bool `koanf:"reset_on_server_change"`

	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath string `koanf:"db_path"`

	// RedisURL enables the stream publisher when set, e.g. redis://localhost:6379/0.
	RedisURL string `koanf:"redis_url"`

	// RedisStream names the stream scored points are appended to.
	RedisStream string `koanf:"redis_stream"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		QueueSize:           1_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          10_000,
		MatchParallelism:    runtime.NumCPU(),
		ResetOnServerChange: true,
		DBPath:              "",
		RedisURL:            "",
		RedisStream:         "rally:points",
	}
}

// Validate reports the first setting that cannot run the service.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q must be text or json", ErrInvalidConfig, c.LogFormat)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.MatchParallelism <= 0:
		return fmt.Errorf("%w: match_parallelism must be positive, got %d", ErrInvalidConfig, c.MatchParallelism)
	case c.RedisURL != "" && c.RedisStream == "":
		return fmt.Errorf("%w: redis_stream must be set with redis_url", ErrInvalidConfig)
	}
	return nil
}
