package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/domain/model"
)

func stat(boss, item string, runs, drops int) model.DropRateStat {
	w := model.NewWindowStat(runs, drops, drops)
	return model.DropRateStat{
		BossID: boss, ItemID: item,
		AllTime: w, Last7Days: w, Last30Days: w,
		Confidence: model.TierFor(runs),
	}
}

func TestMemoryStatsStore(t *testing.T) {
	Convey("Given an empty projection", t, func() {
		ctx := context.Background()
		s := NewMemoryStatsStore()

		Convey("Then reads are empty and the overview is missing", func() {
			out, err := s.Query(ctx, model.StatsQuery{})
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
			gen, _ := s.Generation(ctx)
			So(gen.IsZero(), ShouldBeTrue)
			_, err = s.Summary(ctx)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a generation is published", func() {
			g1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
			stats := []model.DropRateStat{
				stat("hard-lucid", "arcane-umbra-weapon-box", 150, 12),
				stat("hard-lucid", "dreamy-belt", 150, 3),
				stat("hard-lucid", "grindstone-of-life", 150, 0),
				stat("hard-will", "cursed-spellbook", 40, 10),
			}
			So(s.Replace(ctx, g1, stats, model.Summary{TotalRuns: 190, ComputedAt: g1}), ShouldBeNil)

			Convey("Then queries apply the sample floor and sort by rate", func() {
				out, err := s.Query(ctx, model.StatsQuery{MinSample: 100})
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
				So(out[0].ItemID, ShouldEqual, "arcane-umbra-weapon-box")
				So(out[2].ItemID, ShouldEqual, "grindstone-of-life")
				So(*out[2].AllTime.Rate, ShouldEqual, 0)
			})

			Convey("Then queries filter by boss and item", func() {
				out, _ := s.Query(ctx, model.StatsQuery{BossID: "hard-will"})
				So(len(out), ShouldEqual, 1)
				out, _ = s.Query(ctx, model.StatsQuery{ItemID: "dreamy-belt"})
				So(len(out), ShouldEqual, 1)
			})

			Convey("Then rare lists only dropped items, rarest first", func() {
				out, err := s.Rare(ctx, 10, 0)
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
				So(out[0].ItemID, ShouldEqual, "dreamy-belt")
				_, err = s.Rare(ctx, 0, 0)
				So(err, ShouldEqual, ErrInvalidLimit)
			})

			Convey("And an older generation is offered", func() {
				err := s.Replace(ctx, g1.Add(-time.Minute), nil, model.Summary{})

				Convey("Then it is rejected and the projection is untouched", func() {
					So(errors.Is(err, model.ErrStaleGeneration), ShouldBeTrue)
					So(s.Len(), ShouldEqual, 4)
					gen, _ := s.Generation(ctx)
					So(gen, ShouldEqual, g1)
				})
			})

			Convey("And the same generation is replayed", func() {
				So(s.Replace(ctx, g1, stats, model.Summary{TotalRuns: 190}), ShouldBeNil)
				So(s.Len(), ShouldEqual, 4)
			})

			Convey("And the caller mutates its slice afterwards", func() {
				stats[0].ItemID = "mutated"
				out, _ := s.Query(ctx, model.StatsQuery{ItemID: "arcane-umbra-weapon-box"})
				So(len(out), ShouldEqual, 1)
			})
		})
	})
}

func TestMemoryStatsStoreConcurrentReaders(t *testing.T) {
	Convey("Given readers racing a writer", t, func() {
		ctx := context.Background()
		s := NewMemoryStatsStore()
		base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		torn := make(chan int, 1000)
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					out, _ := s.Query(ctx, model.StatsQuery{})
					if len(out) != 0 && len(out) != 2 {
						torn <- len(out)
					}
				}
			}()
		}
		for i := 0; i < 100; i++ {
			_ = s.Replace(ctx, base.Add(time.Duration(i)*time.Second), []model.DropRateStat{
				stat("a", "x", 10, 1), stat("a", "y", 10, 2),
			}, model.Summary{})
		}
		wg.Wait()
		close(torn)

		Convey("Then every read sees a whole generation", func() {
			So(len(torn), ShouldEqual, 0)
		})
	})
}
