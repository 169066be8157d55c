package simulate

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/adapters/http/api"
	service "github.com/okian/dropwatch/internal/app"
	"github.com/okian/dropwatch/internal/config"
	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var testBosses = []model.Boss{
	{ID: "hard-lucid", PartySize: 6, Drops: []model.BossItem{
		{ItemID: "dreamy-belt"},
		{ItemID: "lucid-soul", Guaranteed: true},
	}},
	{ID: "chaos-zakum", PartySize: 6, Drops: []model.BossItem{
		{ItemID: "zakum-helmet"},
	}},
}

func boolPtr(b bool) *bool { return &b }

func TestGenerate(t *testing.T) {
	Convey("Given a generator config", t, func() {
		cfg := &Config{Characters: 3, DropChance: 0.5, Seed: 42}

		Convey("Then one clear is planned per character and boss", func() {
			plan := Generate(cfg, testBosses)
			So(len(plan.Clears), ShouldEqual, 6)
			So(plan.Duplicates, ShouldEqual, 0)
			for _, c := range plan.Clears {
				So(*c.PartySize, ShouldBeBetweenOrEqual, 1, 6)
				So(*c.Cleared, ShouldBeTrue)
			}
		})

		Convey("Then every clear is resubmitted at duplicate rate one", func() {
			cfg.DuplicateRate = 1
			plan := Generate(cfg, testBosses)
			So(len(plan.Clears), ShouldEqual, 12)
			So(plan.Duplicates, ShouldEqual, 6)
		})

		Convey("Then failed attempts carry no drops", func() {
			cfg.FailRate = 1
			for _, c := range Generate(cfg, testBosses).Clears {
				So(*c.Cleared, ShouldBeFalse)
				So(c.Drops, ShouldBeEmpty)
			}
		})

		Convey("Then guaranteed items always drop", func() {
			cfg.DropChance = 0
			for _, c := range Generate(cfg, testBosses).Clears {
				if c.BossID == "hard-lucid" {
					So(c.Drops, ShouldResemble, []clears.DropInput{{ItemID: "lucid-soul"}})
				} else {
					So(c.Drops, ShouldBeEmpty)
				}
			}
		})

		Convey("Then the same seed draws the same drops", func() {
			a, b := Generate(cfg, testBosses), Generate(cfg, testBosses)
			for i := range a.Clears {
				So(a.Clears[i].Drops, ShouldResemble, b.Clears[i].Drops)
			}
		})
	})
}

func TestExpect(t *testing.T) {
	Convey("Given accepted clears", t, func() {
		accepted := []clears.RecordInput{
			{BossID: "hard-lucid", Cleared: boolPtr(true), Drops: []clears.DropInput{
				{ItemID: "dreamy-belt"}, {ItemID: "dreamy-belt"},
			}},
			{BossID: "hard-lucid", Drops: []clears.DropInput{{ItemID: "lucid-soul"}}},
			{BossID: "hard-lucid", Cleared: boolPtr(false)},
		}

		Convey("Then failed attempts are not runs and repeats count once", func() {
			exp := Expect(accepted)
			So(exp.Runs["hard-lucid"], ShouldEqual, 2)
			So(exp.Drops[model.Pair{BossID: "hard-lucid", ItemID: "dreamy-belt"}], ShouldEqual, 1)
			So(exp.Drops[model.Pair{BossID: "hard-lucid", ItemID: "lucid-soul"}], ShouldEqual, 1)
		})
	})
}

func TestVerify(t *testing.T) {
	stat := func(boss, item string, runs, drops int) model.DropRateStat {
		return model.DropRateStat{BossID: boss, ItemID: item, AllTime: model.NewWindowStat(runs, drops, drops)}
	}
	belt := model.Pair{BossID: "hard-lucid", ItemID: "dreamy-belt"}

	Convey("Given an expectation of two runs and one belt", t, func() {
		exp := Expectation{
			Runs:  map[string]int{"hard-lucid": 2},
			Drops: map[model.Pair]int{belt: 1},
		}

		Convey("When the boss was not published before", func() {
			v := Verify(exp, nil, []model.DropRateStat{
				stat("hard-lucid", "dreamy-belt", 2, 1),
				stat("hard-lucid", "lucid-soul", 2, 0),
			})
			So(v.Err(), ShouldBeNil)
			So(v.Verified, ShouldEqual, 2)
		})

		Convey("When counts move from a baseline", func() {
			before := []model.DropRateStat{stat("hard-lucid", "dreamy-belt", 10, 3)}
			v := Verify(exp, before, []model.DropRateStat{stat("hard-lucid", "dreamy-belt", 12, 4)})
			So(v.Err(), ShouldBeNil)
			So(v.Verified, ShouldEqual, 1)
		})

		Convey("When a pair appears for a boss already published", func() {
			before := []model.DropRateStat{stat("hard-lucid", "lucid-soul", 10, 10)}
			v := Verify(exp, before, []model.DropRateStat{
				stat("hard-lucid", "lucid-soul", 12, 10),
				stat("hard-lucid", "dreamy-belt", 12, 1),
			})
			So(v.Err(), ShouldBeNil)
			So(v.Skipped, ShouldEqual, 1)
		})

		Convey("When the drops do not add up", func() {
			v := Verify(exp, nil, []model.DropRateStat{stat("hard-lucid", "dreamy-belt", 2, 2)})
			So(errors.Is(v.Err(), ErrMismatch), ShouldBeTrue)
			So(v.Mismatches, ShouldHaveLength, 1)
		})

		Convey("When the pair is not published", func() {
			v := Verify(exp, nil, nil)
			So(v.Err(), ShouldBeNil)
			So(v.Skipped, ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running dropwatch server", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.PublicMinSample = 0
		cfg.RecomputeOnWrite = false

		svc, err := service.New(ctx, cfg)
		So(err, ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc).Handler(ctx))
		defer srv.Close()
		defer func() { _ = svc.Stop(ctx) }()

		out := filepath.Join(t.TempDir(), "out", "clears.json")
		simCfg := &Config{
			BaseURL:       srv.URL,
			Characters:    5,
			Bosses:        []string{"hard-lucid", "chaos-zakum"},
			DropChance:    0.3,
			FailRate:      0.2,
			DuplicateRate: 0.5,
			Workers:       4,
			Timeout:       5 * time.Second,
			Seed:          7,
			OutputFile:    out,
		}

		Convey("When the simulation runs", func() {
			stats, err := Run(ctx, simCfg)

			Convey("Then the published stats match the accepted clears", func() {
				So(err, ShouldBeNil)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Accepted+stats.Duplicates, ShouldEqual, stats.ClearsGenerated)
				So(stats.Accepted, ShouldEqual, 10)
				So(stats.PairsVerified, ShouldBeGreaterThan, 0)
			})

			Convey("Then the plan is saved", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
			})

			Convey("Then a second run still verifies against the new baseline", func() {
				So(err, ShouldBeNil)
				simCfg.Seed = 8
				_, err := Run(ctx, simCfg)
				So(err, ShouldBeNil)
			})
		})

		Convey("When no requested boss exists", func() {
			simCfg.Bosses = []string{"pink-bean"}
			_, err := Run(ctx, simCfg)
			So(errors.Is(err, ErrNoBosses), ShouldBeTrue)
		})
	})

	Convey("Given a server that rate limits writes", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.RecomputeOnWrite = false
		svc, err := service.New(ctx, cfg)
		So(err, ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc, api.WithRateLimit(5, 2)).Handler(ctx))
		defer srv.Close()
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then throttled clears are retried until accepted", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:    srv.URL,
				Characters: 6,
				Bosses:     []string{"hard-lucid"},
				DropChance: 0.5,
				Workers:    3,
				Timeout:    5 * time.Second,
				Seed:       3,
			})
			So(err, ShouldBeNil)
			So(stats.Accepted, ShouldEqual, 6)
			So(stats.Failed, ShouldEqual, 0)
		})
	})

	Convey("Given no server", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, Workers: 1})
		So(err, ShouldNotBeNil)
	})
}
