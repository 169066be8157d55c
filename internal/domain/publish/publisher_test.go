package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/adapters/cache"
	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

var gen = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func stat(boss, item string, runs, drops int) model.DropRateStat {
	w := model.NewWindowStat(runs, drops, drops)
	return model.DropRateStat{
		BossID: boss, ItemID: item,
		AllTime: w, Last7Days: w, Last30Days: w,
		Confidence: model.TierFor(runs), ComputedAt: gen,
	}
}

func seeded(ctx context.Context) *repository.MemoryStatsStore {
	s := repository.NewMemoryStatsStore()
	err := s.Replace(ctx, gen, []model.DropRateStat{
		stat("hard-lucid", "arcane-umbra-weapon-box", 150, 12),
		stat("hard-lucid", "dreamy-belt", 150, 1),
		stat("hard-lucid", "grindstone-of-life", 150, 0),
		stat("hard-will", "cursed-spellbook", 40, 4),
	}, model.Summary{TotalRuns: 190, ComputedAt: gen})
	if err != nil {
		panic(err)
	}
	return s
}

type countingReader struct {
	Reader
	queries int
}

func (c *countingReader) Query(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error) {
	c.queries++
	return c.Reader.Query(ctx, q)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) (bool, error) {
	return false, errors.New("connection reset")
}

func (brokenCache) Set(context.Context, string, any, time.Duration) error {
	return errors.New("connection reset")
}

func TestQuery(t *testing.T) {
	Convey("Given a published projection", t, func() {
		ctx := context.Background()
		p := New(seeded(ctx))

		Convey("When queried with the default floor", func() {
			out, err := p.Query(ctx, model.StatsQuery{})
			So(err, ShouldBeNil)

			Convey("Then low-sample stats are hidden and rows are ordered by rate", func() {
				So(len(out), ShouldEqual, 3)
				So(out[0].ItemID, ShouldEqual, "arcane-umbra-weapon-box")
				So(*out[0].AllTime.Rate, ShouldAlmostEqual, 0.08, 1e-12)
				So(out[2].ItemID, ShouldEqual, "grindstone-of-life")
				So(*out[2].AllTime.Rate, ShouldEqual, 0.0)
			})
		})

		Convey("When the caller asks for less than the floor", func() {
			out, err := p.Query(ctx, model.StatsQuery{BossID: "hard-will", MinSample: 10})
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})

		Convey("When the floor is lowered", func() {
			out, err := New(seeded(ctx), WithFloor(0)).Query(ctx, model.StatsQuery{BossID: "hard-will"})
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 1)
		})

		Convey("When the caller asks for more than the floor", func() {
			out, err := p.Query(ctx, model.StatsQuery{MinSample: 151})
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})

		Convey("When the sample size is negative", func() {
			_, err := p.Query(ctx, model.StatsQuery{MinSample: -1})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestRare(t *testing.T) {
	Convey("Given a published projection", t, func() {
		ctx := context.Background()
		p := New(seeded(ctx), WithMaxRareLimit(5))

		Convey("When the rare board is read", func() {
			out, err := p.Rare(ctx, 0, 0)
			So(err, ShouldBeNil)

			Convey("Then dropped items are ranked rarest first", func() {
				So(len(out), ShouldEqual, 2)
				So(out[0].Rank, ShouldEqual, 1)
				So(out[0].ItemID, ShouldEqual, "dreamy-belt")
				So(out[1].Rank, ShouldEqual, 2)
				So(out[1].ItemID, ShouldEqual, "arcane-umbra-weapon-box")
			})
		})

		Convey("When the limit is out of range", func() {
			_, err := p.Rare(ctx, 6, 0)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = p.Rare(ctx, -1, 0)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestOverview(t *testing.T) {
	Convey("Given no published generation", t, func() {
		ctx := context.Background()
		p := New(repository.NewMemoryStatsStore(), WithCache(cache.NewMemory(nil)))

		_, err := p.Overview(ctx)
		So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
	})

	Convey("Given a published generation", t, func() {
		ctx := context.Background()
		s, err := New(seeded(ctx)).Overview(ctx)
		So(err, ShouldBeNil)
		So(s.TotalRuns, ShouldEqual, 190)
	})
}

func TestCache(t *testing.T) {
	Convey("Given a cached publisher", t, func() {
		ctx := context.Background()
		store := seeded(ctx)
		reader := &countingReader{Reader: store}
		c := cache.NewMemory(nil)
		p := New(reader, WithCache(c))

		first, err := p.Query(ctx, model.StatsQuery{})
		So(err, ShouldBeNil)

		Convey("When the same query repeats", func() {
			second, err := p.Query(ctx, model.StatsQuery{})
			So(err, ShouldBeNil)

			Convey("Then it is served from the cache", func() {
				So(reader.queries, ShouldEqual, 1)
				So(second, ShouldResemble, first)
			})
		})

		Convey("When a new generation is published", func() {
			err := store.Replace(ctx, gen.Add(time.Hour), []model.DropRateStat{stat("hard-lucid", "dreamy-belt", 300, 3)}, model.Summary{})
			So(err, ShouldBeNil)
			out, err := p.Query(ctx, model.StatsQuery{})
			So(err, ShouldBeNil)

			Convey("Then the old entry is not used", func() {
				So(reader.queries, ShouldEqual, 2)
				So(len(out), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a memory cache behind a publisher that republishes often", t, func() {
		ctx := context.Background()
		clock := period.NewFakeClock(gen)
		store := repository.NewMemoryStatsStore()
		c := cache.NewMemory(clock)
		p := New(store, WithCache(c), WithTTL(time.Minute))

		for i := range 1000 {
			at := gen.Add(time.Duration(i) * time.Hour)
			err := store.Replace(ctx, at, []model.DropRateStat{stat("hard-lucid", "dreamy-belt", 150+i, 1)}, model.Summary{ComputedAt: at})
			So(err, ShouldBeNil)
			_, err = p.Query(ctx, model.StatsQuery{})
			So(err, ShouldBeNil)
			clock.Advance(2 * time.Hour)
		}

		Convey("Then entries from old generations do not pile up", func() {
			So(c.Len(), ShouldBeLessThan, 1000)
			So(c.Len(), ShouldBeLessThanOrEqualTo, 256)
		})
	})

	Convey("Given a cache that always fails", t, func() {
		ctx := context.Background()
		p := New(seeded(ctx), WithCache(brokenCache{}))

		Convey("When queried", func() {
			out, err := p.Query(ctx, model.StatsQuery{})

			Convey("Then reads fall through to the projection", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
			})
		})
	})
}
