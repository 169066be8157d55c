package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

func TestMemory(t *testing.T) {
	Convey("Given a memory cache", t, func() {
		ctx := context.Background()
		clock := period.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		c := NewMemory(clock)

		Convey("When a key was never set", func() {
			var out []model.RareEntry
			ok, err := c.Get(ctx, "missing", &out)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("When a value is stored", func() {
			in := []model.RareEntry{{Rank: 1, BossID: "hard-lucid", ItemID: "dreamy-belt", Rate: 0.01, Runs: 200, Drops: 2}}
			So(c.Set(ctx, "k", in, time.Minute), ShouldBeNil)

			Convey("Then it is returned before expiry", func() {
				var out []model.RareEntry
				ok, err := c.Get(ctx, "k", &out)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out, ShouldResemble, in)
			})

			Convey("Then it is gone after expiry", func() {
				clock.Advance(time.Minute)
				var out []model.RareEntry
				ok, err := c.Get(ctx, "k", &out)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(c.Len(), ShouldEqual, 0)
			})
		})

		Convey("When many keys expire without being read again", func() {
			for i := range 1000 {
				So(c.Set(ctx, fmt.Sprintf("gen-%d", i), i, time.Minute), ShouldBeNil)
				clock.Advance(time.Hour)
			}

			Convey("Then the expired ones are swept on write", func() {
				So(c.Len(), ShouldBeLessThanOrEqualTo, minSweep)
			})
		})

		Convey("When many live keys are stored", func() {
			for i := range 1000 {
				So(c.Set(ctx, fmt.Sprintf("live-%d", i), i, time.Hour), ShouldBeNil)
			}

			Convey("Then none are dropped", func() {
				So(c.Len(), ShouldEqual, 1000)
				var out int
				ok, err := c.Get(ctx, "live-0", &out)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(out, ShouldEqual, 0)
			})
		})

		Convey("When a value cannot be encoded", func() {
			err := c.Set(ctx, "k", make(chan int), time.Minute)
			So(errors.Is(err, ErrEncode), ShouldBeTrue)
		})
	})
}

// Runs against a live server: TEST_REDIS_ADDR=localhost:6379 go test ./...
func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	Convey("Given a redis cache", t, func() {
		ctx := context.Background()
		c, err := NewRedis(ctx, addr, WithPrefix("dropwatch-test:"+uuid.NewString()+":"))
		So(err, ShouldBeNil)
		defer c.Close()

		Convey("When a summary is stored and read back", func() {
			in := model.Summary{TotalRuns: 10, TotalDrops: 3, UniqueCharacters: 4, ComputedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
			So(c.Set(ctx, "overview", in, time.Minute), ShouldBeNil)

			var out model.Summary
			ok, err := c.Get(ctx, "overview", &out)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(out.TotalRuns, ShouldEqual, 10)
			So(out.ComputedAt.Equal(in.ComputedAt), ShouldBeTrue)
		})

		Convey("When a key is missing", func() {
			var out model.Summary
			ok, err := c.Get(ctx, "nope", &out)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})
}
