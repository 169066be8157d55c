package model

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/domain/period"
)

func TestTierFor(t *testing.T) {
	Convey("Given all-time run counts", t, func() {
		So(TierFor(0), ShouldEqual, TierLow)
		So(TierFor(99), ShouldEqual, TierLow)
		So(TierFor(100), ShouldEqual, TierMedium)
		So(TierFor(150), ShouldEqual, TierMedium)
		So(TierFor(1000), ShouldEqual, TierMedium)
		So(TierFor(1001), ShouldEqual, TierHigh)
	})
}

func TestWindowStat(t *testing.T) {
	Convey("Given window counts", t, func() {
		Convey("When there are runs but no drops", func() {
			w := NewWindowStat(10, 0, 0)
			So(w.Rate, ShouldNotBeNil)
			So(*w.Rate, ShouldEqual, 0)
		})

		Convey("When there are no runs", func() {
			w := NewWindowStat(0, 0, 0)
			So(w.Rate, ShouldBeNil)
			So(w.RateOr(-1), ShouldEqual, -1)
		})

		Convey("When 12 of 150 runs dropped the item", func() {
			w := NewWindowStat(150, 12, 12)
			So(*w.Rate, ShouldAlmostEqual, 0.08, 1e-12)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given domain errors", t, func() {
		Convey("Then validation errors match ErrValidation", func() {
			var err error = NewValidationError("party_size", "must be between 1 and 6")
			So(errors.Is(err, ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "party_size: must be between 1 and 6")
			So(errors.Is(ErrImmutableField, ErrValidation), ShouldBeTrue)
		})

		Convey("Then storage errors are tagged once", func() {
			err := StorageError("insert clear", context.DeadlineExceeded)
			So(errors.Is(err, ErrStorageUnavailable), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)

			err = StorageError("get clear", ErrNotFound)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, ErrStorageUnavailable), ShouldBeFalse)

			So(StorageError("noop", nil), ShouldBeNil)
		})
	})
}

func TestClearEvent(t *testing.T) {
	Convey("Given a clear with repeated drops", t, func() {
		price := int64(5)
		c := ClearEvent{
			CharacterID: "c1",
			BossID:      "hard-lucid",
			PeriodKey:   period.Key{Year: 2024, Month: time.January, Day: 4},
			Drops: []DropEvent{
				{ItemID: "a", Quantity: 1, SalePrice: &price},
				{ItemID: "b", Quantity: 2},
				{ItemID: "a", Quantity: 1},
			},
		}

		Convey("Then ItemIDs are distinct", func() {
			So(c.ItemIDs(), ShouldResemble, []string{"a", "b"})
		})

		Convey("Then Clone does not share drops", func() {
			cp := c.Clone()
			cp.Drops[0].ItemID = "z"
			*cp.Drops[0].SalePrice = 9
			So(c.Drops[0].ItemID, ShouldEqual, "a")
			So(*c.Drops[0].SalePrice, ShouldEqual, int64(5))
		})

		Convey("Then the idempotence key includes the period", func() {
			other := c
			other.PeriodKey = c.PeriodKey.AddDays(7)
			So(c.IdempotenceKey(), ShouldNotEqual, other.IdempotenceKey())
		})

		Convey("Then filters match on every set field", func() {
			c.OccurredAt = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
			So(ClearFilter{}.Matches(c), ShouldBeTrue)
			So(ClearFilter{CharacterID: "c1", BossID: "hard-lucid"}.Matches(c), ShouldBeTrue)
			So(ClearFilter{BossID: "hard-will"}.Matches(c), ShouldBeFalse)
			So(ClearFilter{PeriodKey: c.PeriodKey.AddDays(7)}.Matches(c), ShouldBeFalse)
			So(ClearFilter{Since: c.OccurredAt.Add(time.Second)}.Matches(c), ShouldBeFalse)
		})
	})
}

func TestBoss(t *testing.T) {
	Convey("Given bosses", t, func() {
		open := Boss{ID: "x"}
		So(open.IsActive(), ShouldBeTrue)
		So(open.HasItem("anything"), ShouldBeTrue)

		inactive := false
		b := Boss{ID: "y", Active: &inactive, Drops: []BossItem{{ItemID: "box"}}}
		So(b.IsActive(), ShouldBeFalse)
		So(b.HasItem("box"), ShouldBeTrue)
		So(b.HasItem("other"), ShouldBeFalse)
	})
}
