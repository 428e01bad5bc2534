package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/cull/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("When an ID is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "ev-1")

			Convey("Then it reports not seen and counts one entry", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And recording it again reports seen", func() {
				So(d.SeenAndRecord(ctx, "ev-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When more IDs than the capacity are recorded", func() {
			for i := 1; i <= 4; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("ev-%d", i)), ShouldBeFalse)
			}

			Convey("Then the oldest ID is forgotten first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "ev-1"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "ev-4"), ShouldBeTrue)
			})
		})

		Convey("When an ID is unrecorded", func() {
			d.SeenAndRecord(ctx, "ev-1")
			d.Unrecord(ctx, "ev-1")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "ev-1"), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown ID", func() {
			d.Unrecord(ctx, "nope")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many IDs are recorded", func() {
			for i := 0; i < 1000; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("ev-%d", i)), ShouldBeFalse)
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "ev-0"), ShouldBeTrue)
			})
		})
	})

	Convey("Given concurrent writers", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					d.SeenAndRecord(ctx, fmt.Sprintf("g%d-ev-%d", g, i))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then every distinct ID is recorded exactly once", func() {
			So(d.Size(), ShouldEqual, 800)
		})
	})
}
