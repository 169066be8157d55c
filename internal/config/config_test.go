package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.ResetTimezone, convey.ShouldEqual, "UTC")
			convey.So(cfg.WeeklyAnchor, convey.ShouldEqual, "thursday")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.RecomputeSchedule, convey.ShouldEqual, "@every 1h")
			convey.So(cfg.RecomputeOnWrite, convey.ShouldBeTrue)
			convey.So(cfg.PublicMinSample, convey.ShouldEqual, 100)
			convey.So(cfg.MaxRareLimit, convey.ShouldEqual, 100)
			convey.So(cfg.MaxPartySize, convey.ShouldEqual, 6)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the duration helpers convert units", func() {
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.RecomputeDebounce(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.FutureSkew(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 10*time.Second)
		})

		convey.Convey("Then the reset zone and anchor resolve", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.UTC)

			day, err := cfg.Anchor()
			convey.So(err, convey.ShouldBeNil)
			convey.So(day, convey.ShouldEqual, time.Thursday)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one invalid value", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":           func(c *config.Config) { c.Addr = "" },
			"unknown log format":   func(c *config.Config) { c.LogFormat = "xml" },
			"unknown timezone":     func(c *config.Config) { c.ResetTimezone = "Mars/Olympus" },
			"unknown anchor":       func(c *config.Config) { c.WeeklyAnchor = "someday" },
			"zero queue":           func(c *config.Config) { c.QueueSize = 0 },
			"zero concurrency":     func(c *config.Config) { c.RecomputeConcurrency = 0 },
			"negative min sample":  func(c *config.Config) { c.PublicMinSample = -1 },
			"negative debounce":    func(c *config.Config) { c.RecomputeDebounceMS = -5 },
			"zero rate":            func(c *config.Config) { c.RateLimitRPS = 0 },
			"zero max party size":  func(c *config.Config) { c.MaxPartySize = 0 },
			"negative future skew": func(c *config.Config) { c.FutureSkewSeconds = -1 },
			"zero metrics refresh": func(c *config.Config) { c.MetricsRefreshSeconds = 0 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("When "+name, func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a config in another zone", t, func() {
		cfg := config.New()
		cfg.ResetTimezone = "America/New_York"
		cfg.WeeklyAnchor = "Wed"

		convey.Convey("Then it validates", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			day, _ := cfg.Anchor()
			convey.So(day, convey.ShouldEqual, time.Wednesday)
		})
	})
}
