package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/rallyscore/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.MatchParallelism, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.ResetOnServerChange, convey.ShouldBeTrue)
			convey.So(cfg.DBPath, convey.ShouldBeEmpty)
			convey.So(cfg.RedisStream, convey.ShouldEqual, "rally:points")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with a broken field", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":           func(c *config.Config) { c.Addr = "" },
			"unknown log format":   func(c *config.Config) { c.LogFormat = "xml" },
			"zero queue":           func(c *config.Config) { c.QueueSize = 0 },
			"zero workers":         func(c *config.Config) { c.WorkerCount = 0 },
			"negative dedupe":      func(c *config.Config) { c.DedupeSize = -1 },
			"zero parallelism":     func(c *config.Config) { c.MatchParallelism = 0 },
			"redis with no stream": func(c *config.Config) { c.RedisURL = "redis://x"; c.RedisStream = "" },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+name+" is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
