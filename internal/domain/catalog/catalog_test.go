package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
)

func TestDefaultCatalog(t *testing.T) {
	Convey("Given the embedded catalog", t, func() {
		c, err := Default()
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Then Hard Lucid is a weekly boss with the weapon box", func() {
			b, err := c.Boss(ctx, "hard-lucid")
			So(err, ShouldBeNil)
			So(b.Cadence, ShouldEqual, period.Weekly)
			So(b.HasItem("arcane-umbra-weapon-box"), ShouldBeTrue)
			So(b.PartySize, ShouldEqual, 6)
		})

		Convey("Then every cadence is represented", func() {
			cadences := map[period.Cadence]bool{}
			for _, b := range c.Bosses(ctx) {
				cadences[b.Cadence] = true
			}
			So(cadences[period.Daily], ShouldBeTrue)
			So(cadences[period.Weekly], ShouldBeTrue)
			So(cadences[period.Monthly], ShouldBeTrue)
		})

		Convey("Then bosses come back in sort order", func() {
			bosses := c.Bosses(ctx)
			So(len(bosses), ShouldEqual, c.Len())
			for i := 1; i < len(bosses); i++ {
				So(bosses[i-1].SortOrder, ShouldBeLessThanOrEqualTo, bosses[i].SortOrder)
			}
		})

		Convey("Then pairs cover drop tables", func() {
			So(c.Pairs(ctx), ShouldContain, model.Pair{BossID: "hard-lucid", ItemID: "arcane-umbra-weapon-box"})
		})

		Convey("Then unknown bosses are not found", func() {
			_, err := c.Boss(ctx, "pink-bean")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestLoadValidation(t *testing.T) {
	Convey("Given malformed catalogs", t, func() {
		cases := []struct{ name, doc string }{
			{"unknown cadence", "bosses:\n  - id: a\n    cadence: hourly\n"},
			{"duplicate boss", "bosses:\n  - id: a\n    cadence: daily\n  - id: a\n    cadence: daily\n"},
			{"missing id", "bosses:\n  - cadence: daily\n"},
			{"party too large", "bosses:\n  - id: a\n    cadence: daily\n    party_size: 7\n"},
			{"duplicate item", "bosses:\n  - id: a\n    cadence: daily\n    drops:\n      - item: x\n      - item: x\n"},
			{"unknown field", "bosses:\n  - id: a\n    cadence: daily\n    colour: red\n"},
		}
		for _, tc := range cases {
			Convey("Then "+tc.name+" is rejected", func() {
				_, err := Load(strings.NewReader(tc.doc))
				So(errors.Is(err, ErrInvalidCatalog), ShouldBeTrue)
			})
		}
	})

	Convey("Given a catalog file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "bosses.yaml")
		doc := "bosses:\n  - id: easy-magnus\n    name: Magnus\n    cadence: Daily\n    party_size: 1\n"
		So(os.WriteFile(path, []byte(doc), 0o600), ShouldBeNil)

		c, err := LoadFile(path)
		So(err, ShouldBeNil)
		b, err := c.Boss(context.Background(), "easy-magnus")
		So(err, ShouldBeNil)
		So(b.Cadence, ShouldEqual, period.Daily)
		So(b.PartySize, ShouldEqual, 1)

		_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}
