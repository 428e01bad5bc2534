package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	repository "github.com/okian/cull/internal/adapters/repository"
	service "github.com/okian/cull/internal/app"
	"github.com/okian/cull/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with a small retention quota", t, func() {
		svc := startedService(t,
			service.WithWorkerCount(4),
			service.WithQueueSize(10_000),
		)
		p, err := svc.CreateProject(ctx, "backend", 50)
		So(err, ShouldBeNil)

		Convey("When far more events than the quota are ingested", func() {
			const total = 300
			for i := 0; i < total; i++ {
				ev := model.Event{
					ID:        fmt.Sprintf("ev-%d", i),
					ProjectID: p.ID,
					IssueID:   fmt.Sprintf("fp-%d", i%5),
					Message:   "integration boom",
					Level:     "error",
				}
				So(svc.Enqueue(ctx, ev), ShouldBeTrue)
			}

			drained := waitFor(15*time.Second, func() bool {
				stats := svc.GetStats()
				length, _ := stats["queueLength"].(int)
				return length == 0
			})
			So(drained, ShouldBeTrue)

			// Give in-flight digests a moment to finish their eviction pass.
			settled := waitFor(15*time.Second, func() bool {
				stats, err := svc.ProjectStats(ctx, p.ID)
				return err == nil && stats.StoredEvents <= 50
			})

			Convey("Then retention keeps the project at or under its quota", func() {
				So(settled, ShouldBeTrue)

				stats, err := svc.ProjectStats(ctx, p.ID)
				So(err, ShouldBeNil)
				So(stats.StoredEvents, ShouldBeGreaterThan, 0)
				So(stats.StoredEvents, ShouldBeLessThanOrEqualTo, 50)

				Convey("And every issue keeps its representative event", func() {
					So(stats.Issues, ShouldEqual, 5)
					So(stats.StoredEvents, ShouldBeGreaterThanOrEqualTo, stats.Issues)
				})
			})
		})
	})
}

func TestPipeline_IsolatedProjects(t *testing.T) {
	ctx := context.Background()

	Convey("Given two projects with different quotas", t, func() {
		svc := startedService(t, service.WithWorkerCount(2), service.WithQueueSize(10_000))

		small, err := svc.CreateProject(ctx, "small", 20)
		So(err, ShouldBeNil)
		big, err := svc.CreateProject(ctx, "big", 10_000)
		So(err, ShouldBeNil)

		Convey("When both receive the same burst", func() {
			for i := 0; i < 100; i++ {
				So(svc.Enqueue(ctx, model.Event{
					ID:        fmt.Sprintf("s-%d", i),
					ProjectID: small.ID,
					IssueID:   "fp-s",
					Message:   "m",
				}), ShouldBeTrue)
				So(svc.Enqueue(ctx, model.Event{
					ID:        fmt.Sprintf("b-%d", i),
					ProjectID: big.ID,
					IssueID:   "fp-b",
					Message:   "m",
				}), ShouldBeTrue)
			}

			settled := waitFor(15*time.Second, func() bool {
				smallStats, err1 := svc.ProjectStats(ctx, small.ID)
				bigStats, err2 := svc.ProjectStats(ctx, big.ID)
				return err1 == nil && err2 == nil &&
					smallStats.StoredEvents <= 20 && bigStats.StoredEvents == 100
			})

			Convey("Then only the small project is evicted", func() {
				So(settled, ShouldBeTrue)

				smallStats, err := svc.ProjectStats(ctx, small.ID)
				So(err, ShouldBeNil)
				So(smallStats.StoredEvents, ShouldBeLessThanOrEqualTo, 20)

				bigStats, err := svc.ProjectStats(ctx, big.ID)
				So(err, ShouldBeNil)
				So(bigStats.StoredEvents, ShouldEqual, 100)
			})
		})
	})
}

func TestPipeline_DroppedUnknownProject(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service", t, func() {
		store, err := repository.Open(":memory:")
		So(err, ShouldBeNil)
		svc := service.New(service.WithStore(store), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When an event for an unregistered project is enqueued", func() {
			So(svc.Enqueue(ctx, model.Event{ID: "ev-1", ProjectID: "ghost", IssueID: "fp", Message: "m"}), ShouldBeTrue)

			drained := waitFor(5*time.Second, func() bool {
				length, _ := svc.GetStats()["queueLength"].(int)
				return length == 0
			})

			Convey("Then it is dropped silently", func() {
				So(drained, ShouldBeTrue)
			})
		})
	})
}
