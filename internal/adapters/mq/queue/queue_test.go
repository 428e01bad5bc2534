package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	queue "github.com/okian/cull/internal/adapters/mq/queue"
	"github.com/okian/cull/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new in-memory queue", t, func() {
		Convey("When creating with default options", func() {
			q := queue.NewInMemoryQueue()

			Convey("Then it starts empty and open", func() {
				So(q.Len(ctx), ShouldEqual, 0)
				So(q.IsClosed(), ShouldBeFalse)
			})
		})

		Convey("When enqueuing events", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10), queue.WithBufferSize(10))

			ok := q.Enqueue(ctx, model.Event{ID: "ev-1", ProjectID: "p1"})

			Convey("Then the event is accepted", func() {
				So(ok, ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the queue is at capacity", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(2), queue.WithBufferSize(2))
			So(q.Enqueue(ctx, model.Event{ID: "ev-1"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.Event{ID: "ev-2"}), ShouldBeTrue)

			Convey("Then further enqueues are rejected", func() {
				So(q.Enqueue(ctx, model.Event{ID: "ev-3"}), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When dequeuing", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10), queue.WithBufferSize(10))
			for i := 0; i < 3; i++ {
				So(q.Enqueue(ctx, model.Event{ID: fmt.Sprintf("ev-%d", i)}), ShouldBeTrue)
			}

			Convey("Then events come out in order", func() {
				ch := q.Dequeue(ctx)
				for i := 0; i < 3; i++ {
					select {
					case e := <-ch:
						So(e.ID, ShouldEqual, fmt.Sprintf("ev-%d", i))
					case <-time.After(time.Second):
						t.Fatal("timed out waiting for event")
					}
				}
			})
		})

		Convey("When closing the queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(10), queue.WithBufferSize(10))
			So(q.Enqueue(ctx, model.Event{ID: "ev-1"}), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then it rejects new events", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, model.Event{ID: "ev-2"}), ShouldBeFalse)
			})

			Convey("Then draining still yields buffered events and ends", func() {
				ch := q.Dequeue(ctx)
				e, open := <-ch
				So(open, ShouldBeTrue)
				So(e.ID, ShouldEqual, "ev-1")

				_, open = <-ch
				So(open, ShouldBeFalse)
			})

			Convey("Then closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
