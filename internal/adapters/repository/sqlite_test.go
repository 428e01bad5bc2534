package repository_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	epoch "github.com/okian/cull/internal/domain/epoch"
	"github.com/okian/cull/internal/domain/model"
	repository "github.com/okian/cull/internal/adapters/repository"
	"github.com/okian/cull/internal/retention"
	"github.com/okian/cull/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func openStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProject(t *testing.T, store *repository.SQLiteStore, id string, maxEvents int64) {
	t.Helper()
	err := store.CreateProject(context.Background(), model.Project{
		ID:            id,
		Name:          id,
		MaxEventCount: maxEvents,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
}

func TestProjects(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		store := openStore(t)

		Convey("When creating a project", func() {
			seedProject(t, store, "p1", 10_000)

			Convey("Then it can be read back", func() {
				p, err := store.Project(ctx, "p1")
				So(err, ShouldBeNil)
				So(p.MaxEventCount, ShouldEqual, 10_000)
			})

			Convey("Then creating it again fails", func() {
				err := store.CreateProject(ctx, model.Project{ID: "p1", Name: "dup", MaxEventCount: 1, CreatedAt: time.Now()})
				So(err, ShouldWrap, repository.ErrAlreadyExists)
			})

			Convey("Then listing includes it", func() {
				projects, err := store.Projects(ctx)
				So(err, ShouldBeNil)
				So(projects, ShouldHaveLength, 1)
				So(projects[0].ID, ShouldEqual, "p1")
			})
		})

		Convey("When reading an unknown project", func() {
			_, err := store.Project(ctx, "missing")

			Convey("Then it reports not found", func() {
				So(err, ShouldWrap, repository.ErrNotFound)
			})
		})
	})
}

func TestInsertEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	Convey("Given a project", t, func() {
		store := openStore(t)
		seedProject(t, store, "p1", 10_000)

		Convey("When inserting events for one issue", func() {
			for i := 0; i < 3; i++ {
				err := store.InsertEvent(ctx, model.Event{
					ID:                  fmt.Sprintf("ev-%d", i),
					ProjectID:           "p1",
					IssueID:             "iss-1",
					Message:             "boom",
					Level:               "error",
					ServerSideTimestamp: now.Add(time.Duration(i) * time.Minute),
					ItemIrrelevance:     i,
					NeverEvict:          i == 0,
				})
				So(err, ShouldBeNil)
			}

			Convey("Then the issue count tracks digests", func() {
				count, err := store.IssueEventCount(ctx, "p1", "iss-1")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3)
			})

			Convey("Then an unknown issue counts zero", func() {
				count, err := store.IssueEventCount(ctx, "p1", "iss-404")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 0)
			})

			Convey("Then the project counts all events", func() {
				count, err := store.CountEvents(ctx, "p1")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3)
			})

			Convey("Then project stats report events and issues", func() {
				stats, err := store.ProjectStats(ctx, "p1")
				So(err, ShouldBeNil)
				So(stats.StoredEvents, ShouldEqual, 3)
				So(stats.Issues, ShouldEqual, 1)
				So(stats.MaxEventCount, ShouldEqual, 10_000)
			})
		})
	})
}

func TestRetentionQueries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	Convey("Given events across several hours", t, func() {
		store := openStore(t)
		seedProject(t, store, "p1", 10_000)

		// Protected event, far in the past, huge irrelevance: must stay
		// invisible to every retention query.
		So(store.InsertEvent(ctx, model.Event{
			ID: "protected", ProjectID: "p1", IssueID: "iss-1",
			ServerSideTimestamp: now.Add(-100 * time.Hour),
			ItemIrrelevance:     99, NeverEvict: true,
		}), ShouldBeNil)

		ages := []time.Duration{0, time.Hour, 5 * time.Hour, 20 * time.Hour}
		for i, age := range ages {
			So(store.InsertEvent(ctx, model.Event{
				ID: fmt.Sprintf("ev-%d", i), ProjectID: "p1", IssueID: "iss-1",
				ServerSideTimestamp: now.Add(-age),
				ItemIrrelevance:     i + 1,
			}), ShouldBeNil)
		}

		Convey("When asking for the oldest evictable timestamp", func() {
			oldest, ok, err := store.OldestEvictable(ctx, "p1")

			Convey("Then the protected row is ignored", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(oldest.Unix(), ShouldEqual, now.Add(-20*time.Hour).Unix())
			})
		})

		Convey("When surveying max irrelevance without bounds", func() {
			maxIrr, err := store.MaxItemIrrelevance(ctx, "p1", nil, nil)

			Convey("Then the protected 99 never appears", func() {
				So(err, ShouldBeNil)
				So(maxIrr, ShouldEqual, 4)
			})
		})

		Convey("When surveying inside an epoch window", func() {
			lower := epoch.FromTime(now.Add(-6 * time.Hour))
			upper := epoch.FromTime(now)
			maxIrr, err := store.MaxItemIrrelevance(ctx, "p1", &lower, &upper)

			Convey("Then only rows within bounds contribute", func() {
				So(err, ShouldBeNil)
				So(maxIrr, ShouldEqual, 3)
			})
		})

		Convey("When surveying an empty window", func() {
			lower := epoch.FromTime(now.Add(-50 * time.Hour))
			upper := epoch.FromTime(now.Add(-40 * time.Hour))
			maxIrr, err := store.MaxItemIrrelevance(ctx, "p1", &lower, &upper)

			Convey("Then the max defaults to zero", func() {
				So(err, ShouldBeNil)
				So(maxIrr, ShouldEqual, 0)
			})
		})

		Convey("When deleting above an irrelevance bound", func() {
			deleted, err := store.DeleteEvictable(ctx, "p1", 2, nil)

			Convey("Then only evictable rows above the bound go", func() {
				So(err, ShouldBeNil)
				So(deleted, ShouldEqual, 2) // irrelevance 3 and 4

				count, err := store.CountEvents(ctx, "p1")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3) // protected + irrelevance 1, 2
			})
		})

		Convey("When deleting below an epoch upper bound", func() {
			upper := epoch.FromTime(now.Add(-4 * time.Hour))
			deleted, err := store.DeleteEvictable(ctx, "p1", 0, &upper)

			Convey("Then recent rows survive and protected rows always do", func() {
				So(err, ShouldBeNil)
				So(deleted, ShouldEqual, 2) // the 5h and 20h old rows

				count, err := store.CountEvents(ctx, "p1")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 3)
			})
		})
	})
}

func TestEvictionAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

	Convey("Given an over-capacity project in a real store", t, func() {
		store := openStore(t)
		seedProject(t, store, "p1", 1_000)
		rng := rand.New(rand.NewSource(11))

		const total = 1_100
		protected := 0
		for i := 0; i < total; i++ {
			neverEvict := i%50 == 0
			if neverEvict {
				protected++
			}
			So(store.InsertEvent(ctx, model.Event{
				ID:                  fmt.Sprintf("ev-%d", i),
				ProjectID:           "p1",
				IssueID:             fmt.Sprintf("iss-%d", i%10),
				ServerSideTimestamp: now.Add(-time.Duration(rng.Intn(30*24*3600)) * time.Second),
				ItemIrrelevance:     rng.Intn(10),
				NeverEvict:          neverEvict,
			}), ShouldBeNil)
		}

		Convey("When running a full eviction", func() {
			ev := retention.New(store)
			res, err := ev.EvictForMaxEvents(ctx, "p1", 1_000, now, total)

			Convey("Then the count converges to the lowered target", func() {
				So(err, ShouldBeNil)
				So(res.FinalCount, ShouldBeLessThanOrEqualTo, 950)

				count, err := store.CountEvents(ctx, "p1")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, res.FinalCount)
			})

			Convey("Then every protected event survived", func() {
				maxIrr, err := store.MaxItemIrrelevance(ctx, "p1", nil, nil)
				So(err, ShouldBeNil)
				So(maxIrr, ShouldBeLessThanOrEqualTo, 9)

				stats, err := store.ProjectStats(ctx, "p1")
				So(err, ShouldBeNil)
				So(stats.StoredEvents, ShouldBeGreaterThanOrEqualTo, int64(protected))
			})
		})
	})
}
