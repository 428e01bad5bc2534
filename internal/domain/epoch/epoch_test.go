package epoch_test

import (
	"testing"
	"time"

	epoch "github.com/okian/cull/internal/domain/epoch"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFromTime(t *testing.T) {
	Convey("Given the epoch clock", t, func() {
		Convey("When converting the reference instant", func() {
			e := epoch.FromTime(time.Unix(0, 0))

			Convey("Then the epoch is zero", func() {
				So(e, ShouldEqual, 0)
			})
		})

		Convey("When converting an instant inside an hour", func() {
			// 2021-01-01T12:34:56Z
			t0 := time.Date(2021, 1, 1, 12, 34, 56, 0, time.UTC)
			e := epoch.FromTime(t0)

			Convey("Then it floors to the hour bucket", func() {
				So(e, ShouldEqual, epoch.FromTime(time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)))
				So(e, ShouldNotEqual, epoch.FromTime(time.Date(2021, 1, 1, 13, 0, 0, 0, time.UTC)))
			})
		})

		Convey("When converting the same instant in another location", func() {
			loc := time.FixedZone("UTC+5", 5*3600)
			t0 := time.Date(2021, 6, 1, 9, 30, 0, 0, time.UTC)

			Convey("Then the epoch does not depend on the location", func() {
				So(epoch.FromTime(t0.In(loc)), ShouldEqual, epoch.FromTime(t0))
			})
		})
	})
}

func TestRoundTrip(t *testing.T) {
	Convey("Given a set of epochs", t, func() {
		epochs := []epoch.Epoch{0, 1, 2, 100, 447_000, 1_000_000}

		Convey("When converting each to a time and back", func() {
			for _, e := range epochs {
				So(epoch.FromTime(e.Time()), ShouldEqual, e)
			}
		})

		Convey("When inspecting the boundary instant", func() {
			e := epoch.Epoch(447_000)

			Convey("Then it lies on an exact hour in UTC", func() {
				So(e.Time().Minute(), ShouldEqual, 0)
				So(e.Time().Second(), ShouldEqual, 0)
				So(e.Time().Location(), ShouldEqual, time.UTC)
			})
		})
	})
}
