package period

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	. "github.com/smartystreets/goconvey/convey"
)

func mustKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func TestResolveWeekly(t *testing.T) {
	Convey("Given a UTC resolver anchored on Thursday", t, func() {
		r := NewResolver()
		// 2024-01-04 and 2024-01-11 are Thursdays.

		Convey("When the instant is exactly the anchor midnight", func() {
			k, err := r.Resolve(Weekly, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-11")
		})

		Convey("When the instant is one second earlier", func() {
			k, err := r.Resolve(Weekly, time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-04")
		})

		Convey("When the instant falls mid-week", func() {
			for _, day := range []int{4, 5, 6, 7, 8, 9, 10} {
				k, err := r.Resolve(Weekly, time.Date(2024, 1, day, 15, 30, 0, 0, time.UTC))
				So(err, ShouldBeNil)
				So(k, ShouldResemble, mustKey("2024-01-04"))
			}
		})

		Convey("When the week crosses a year boundary", func() {
			k, err := r.Resolve(Weekly, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-12-26")
		})

		Convey("When the same instant is given in another zone", func() {
			utc := time.Date(2024, 1, 11, 0, 30, 0, 0, time.UTC)
			tokyo, err := time.LoadLocation("Asia/Tokyo")
			So(err, ShouldBeNil)
			a, _ := r.Resolve(Weekly, utc)
			b, _ := r.Resolve(Weekly, utc.In(tokyo))
			So(a, ShouldResemble, b)
		})
	})

	Convey("Given a resolver with a Monday anchor in New York", t, func() {
		ny, err := time.LoadLocation("America/New_York")
		So(err, ShouldBeNil)
		r := NewResolver(WithLocation(ny), WithAnchor(time.Monday))

		Convey("Then the local date decides the period", func() {
			// 2024-01-08 03:00 UTC is Sunday evening in New York.
			k, err := r.Resolve(Weekly, time.Date(2024, 1, 8, 3, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-01")

			k, err = r.Resolve(Weekly, time.Date(2024, 1, 8, 5, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-08")
		})
	})
}

func TestResolveDailyMonthly(t *testing.T) {
	Convey("Given a UTC resolver", t, func() {
		r := NewResolver()

		Convey("Then daily keys are the civil date", func() {
			k, err := r.Resolve(Daily, time.Date(2024, 3, 5, 23, 59, 59, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-03-05")

			k, err = r.Resolve(Daily, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-03-06")
		})

		Convey("Then monthly keys are the first of the month", func() {
			k, err := r.Resolve(Monthly, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-02-01")
		})

		Convey("Then an unknown cadence is rejected", func() {
			_, err := r.Resolve(Cadence("hourly"), time.Now())
			So(errors.Is(err, ErrUnknownCadence), ShouldBeTrue)
		})

		Convey("Then resolution is deterministic", func() {
			at := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
			first, _ := r.Resolve(Weekly, at)
			for i := 0; i < 100; i++ {
				again, _ := r.Resolve(Weekly, at)
				So(again, ShouldResemble, first)
			}
		})
	})
}

func TestBounds(t *testing.T) {
	Convey("Given a resolved weekly key", t, func() {
		r := NewResolver()
		at := time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC)
		k, _ := r.Resolve(Weekly, at)

		Convey("Then the instant lies inside its bounds", func() {
			start, end, err := r.Bounds(Weekly, k)
			So(err, ShouldBeNil)
			So(start, ShouldEqual, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
			So(end, ShouldEqual, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC))
			So(at.Before(end) && !at.Before(start), ShouldBeTrue)
		})

		Convey("Then monthly bounds cover the calendar month", func() {
			start, end, err := r.Bounds(Monthly, mustKey("2024-02-01"))
			So(err, ShouldBeNil)
			So(end.Sub(start), ShouldEqual, 29*24*time.Hour)
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given period keys", t, func() {
		Convey("Then parsing rejects garbage", func() {
			_, err := ParseKey("2024-13-01")
			So(errors.Is(err, ErrInvalidKey), ShouldBeTrue)
		})

		Convey("Then keys order by date", func() {
			So(mustKey("2023-12-31").Before(mustKey("2024-01-01")), ShouldBeTrue)
			So(mustKey("2024-01-02").Before(mustKey("2024-01-01")), ShouldBeFalse)
			So(mustKey("2024-02-28").AddDays(2).String(), ShouldEqual, "2024-03-01")
		})

		Convey("Then keys round-trip through JSON and SQL scanning", func() {
			b, err := json.Marshal(struct {
				K Key `json:"k"`
			}{mustKey("2024-01-04")})
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"k":"2024-01-04"}`)

			var k Key
			So(k.Scan(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)), ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-04")
			So(k.Scan([]byte("2024-01-11")), ShouldBeNil)
			So(k.String(), ShouldEqual, "2024-01-11")
			So(k.Scan(42), ShouldNotBeNil)

			v, err := k.Value()
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "2024-01-11")
		})
	})
}

func TestParsers(t *testing.T) {
	Convey("Given cadence and weekday names", t, func() {
		c, err := ParseCadence(" Weekly ")
		So(err, ShouldBeNil)
		So(c, ShouldEqual, Weekly)
		So(Cadence("yearly").Valid(), ShouldBeFalse)

		d, err := ParseWeekday("thu")
		So(err, ShouldBeNil)
		So(d, ShouldEqual, time.Thursday)
		d, err = ParseWeekday("Sunday")
		So(err, ShouldBeNil)
		So(d, ShouldEqual, time.Sunday)
		_, err = ParseWeekday("someday")
		So(errors.Is(err, ErrUnknownWeekday), ShouldBeTrue)
	})
}

func TestFakeClock(t *testing.T) {
	Convey("Given a fake clock", t, func() {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewFakeClock(start)
		c.Advance(time.Hour)
		So(c.Now(), ShouldEqual, start.Add(time.Hour))
		c.Set(start)
		So(c.Now(), ShouldEqual, start)
	})
}
