package metrics_test

import (
	"testing"

	"github.com/okian/cull/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		reg := prometheus.NewRegistry()

		Convey("When creating a manager with options", func() {
			m := metrics.NewManager(
				metrics.WithPrometheusRegistry(reg),
				metrics.WithNamespace("testns"),
				metrics.WithSubsystem("testsub"),
				metrics.WithHistogramBuckets([]float64{1, 10, 100}),
			)

			Convey("Then the manager is created and metrics are registered", func() {
				So(m, ShouldNotBeNil)
				families, err := reg.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingest metrics", func() {
			So(metrics.RecordEventIngested, ShouldNotPanic)
			So(metrics.RecordEventDuplicate, ShouldNotPanic)
			So(metrics.RecordEventDropped, ShouldNotPanic)
			So(func() { metrics.RecordDigestLatency(12.5) }, ShouldNotPanic)
		})

		Convey("When recording an eviction run", func() {
			So(metrics.RecordEvictionRun, ShouldNotPanic)
			So(func() { metrics.RecordEventsEvicted(501) }, ShouldNotPanic)
			So(metrics.RecordEvictionExhausted, ShouldNotPanic)
			So(func() { metrics.RecordSurveyDuration(3.2) }, ShouldNotPanic)
			So(func() { metrics.RecordSweepDuration(8.9) }, ShouldNotPanic)
			So(func() { metrics.RecordSurveyQueries(7) }, ShouldNotPanic)
			So(func() { metrics.RecordSweepQueries(12) }, ShouldNotPanic)
			So(func() { metrics.UpdateEvictionThresholds(4, 1) }, ShouldNotPanic)
			So(func() { metrics.UpdateStoredEvents("project-1", 9_500) }, ShouldNotPanic)
		})

		Convey("When updating operational gauges", func() {
			So(func() { metrics.UpdateQueueSize(10) }, ShouldNotPanic)
			So(func() { metrics.UpdateQueueCapacity(1000) }, ShouldNotPanic)
			So(func() { metrics.UpdateQueueUtilization(0.01) }, ShouldNotPanic)
			So(func() { metrics.UpdateWorkerCount(4) }, ShouldNotPanic)
			So(func() { metrics.UpdateTotalProjects(3) }, ShouldNotPanic)
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() { metrics.RecordHTTPRequest("events", "POST", "202") }, ShouldNotPanic)
			So(func() { metrics.RecordHTTPRequestDuration("events", "POST", "202", 1.5) }, ShouldNotPanic)
			So(func() { metrics.RecordErrorByComponent("queue", "capacity_exceeded") }, ShouldNotPanic)
			So(func() { metrics.RecordErrorByType("client_error", "medium") }, ShouldNotPanic)
			So(func() { metrics.RecordErrorByEndpoint("events", "POST", "client_error") }, ShouldNotPanic)
			So(func() { metrics.RecordErrorLatency("http", "client_error", 0.8) }, ShouldNotPanic)
		})

		Convey("When recording store latencies", func() {
			So(func() { metrics.RecordStoreQueryLatency(0.4) }, ShouldNotPanic)
			So(func() { metrics.RecordStoreExecLatency(1.1) }, ShouldNotPanic)
		})

		Convey("Then the registry gathers all families", func() {
			families, err := metrics.GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 10)
		})
	})
}
