package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/cull/internal/adapters/mq/queue"
	worker "github.com/okian/cull/internal/adapters/mq/worker"
	"github.com/okian/cull/internal/domain/model"
	"github.com/okian/cull/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recordingDigester collects digested events and can be told to fail.
type recordingDigester struct {
	mu     sync.Mutex
	events []model.Event
	fail   error
}

func (d *recordingDigester) Digest(_ context.Context, e model.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDigester) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDigestWorker(t *testing.T) {
	Convey("Given a worker on a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(100), queue.WithBufferSize(100))
		d := &recordingDigester{}
		w := worker.NewDigestWorker(q, d, worker.WithName("worker-test"))

		Convey("When events are enqueued and the worker runs", func() {
			go w.Run(ctx)
			for i := 0; i < 5; i++ {
				So(q.Enqueue(ctx, model.Event{ID: fmt.Sprintf("ev-%d", i), ProjectID: "p1"}), ShouldBeTrue)
			}

			Convey("Then every event reaches the digester", func() {
				So(waitFor(2*time.Second, func() bool { return d.count() == 5 }), ShouldBeTrue)
			})
		})

		Convey("When the digester keeps failing", func() {
			d.fail = errors.New("store unavailable")
			go w.Run(ctx)
			So(q.Enqueue(ctx, model.Event{ID: "ev-bad"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.Event{ID: "ev-bad-2"}), ShouldBeTrue)

			Convey("Then the worker keeps draining instead of dying", func() {
				So(waitFor(2*time.Second, func() bool { return q.Len(ctx) == 0 }), ShouldBeTrue)
				So(d.count(), ShouldEqual, 0)
			})
		})

		Convey("When shutting the worker down", func() {
			go w.Run(ctx)

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
			defer cancelShutdown()

			Convey("Then shutdown returns promptly", func() {
				So(w.Shutdown(shutdownCtx), ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000), queue.WithBufferSize(1000))
		d := &recordingDigester{}
		pool := worker.NewPool(4, q, d)

		Convey("Then the requested size is honored", func() {
			So(pool.Size(), ShouldEqual, 4)
		})

		Convey("When the pool drains a burst of events", func() {
			pool.Start(ctx)
			for i := 0; i < 200; i++ {
				So(q.Enqueue(ctx, model.Event{ID: fmt.Sprintf("ev-%d", i)}), ShouldBeTrue)
			}

			Convey("Then all events are digested across workers", func() {
				So(waitFor(5*time.Second, func() bool { return d.count() == 200 }), ShouldBeTrue)
			})
		})

		Convey("When shutting down the pool", func() {
			pool.Start(ctx)
			So(q.Enqueue(ctx, model.Event{ID: "ev-last"}), ShouldBeTrue)

			Convey("Then remaining events are drained first", func() {
				So(pool.Shutdown(ctx), ShouldBeNil)
				So(d.count(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a pool with a non-positive worker count", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, &recordingDigester{})

		Convey("Then it falls back to a CPU-scaled default", func() {
			So(pool.Size(), ShouldBeGreaterThan, 0)
		})
	})
}
