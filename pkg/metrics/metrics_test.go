package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithMetricPrefix("x"),
			WithHistogramBuckets([]float64{1, 10, 100}),
			WithMetricsEnabled(false),
			WithRefreshInterval(5*time.Second),
			WithCustomLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)

		Convey("Then they are applied to the manager", func() {
			So(manager.Enabled(), ShouldBeFalse)
			So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)

			manager.clearsRecorded.Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			var found bool
			for _, f := range families {
				if f.GetName() == "test_unit_x_clears_recorded_total" {
					found = true
					So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("Then zero values keep the defaults", func() {
			m := NewManager(
				WithNamespace(""),
				WithRefreshInterval(0),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)
			So(m.namespace, ShouldEqual, "dropwatch")
			So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording clears", func() {
			before := testutil.ToFloat64(current().clearsRecorded)
			RecordClearRecorded()
			RecordClearRecorded()
			RecordClearDuplicate()
			RecordDropsRecorded(3)
			RecordDropsRecorded(0)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(current().clearsRecorded)-before, ShouldEqual, 2)
				So(testutil.ToFloat64(current().clearsDuplicate), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(current().dropsRecorded), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})

		Convey("When recording recomputes", func() {
			before := testutil.ToFloat64(current().recomputeRuns.WithLabelValues(RecomputeInProgress))
			RecordRecompute(RecomputeInProgress, 0)
			RecordRecompute(RecomputeOK, 12.5)
			UpdateProjection(42, time.Unix(1700000000, 0))

			Convey("Then outcome and projection gauges are updated", func() {
				So(testutil.ToFloat64(current().recomputeRuns.WithLabelValues(RecomputeInProgress))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(current().statsPublished), ShouldEqual, 42)
				So(testutil.ToFloat64(current().projectionGeneration), ShouldEqual, 1700000000)
			})
		})

		Convey("When recording queue, cache, HTTP and system metrics", func() {
			So(func() {
				UpdateQueueSize(10)
				UpdateQueueCapacity(1000)
				RecordInvalidationEnqueued()
				RecordInvalidationDropped()
				RecordCacheResult(CacheHit)
				RecordCacheResult(CacheMiss)
				RecordHTTPRequest("/clears", "POST", "201")
				RecordHTTPRequestDuration("/clears", "POST", "201", 3.2)
				RecordErrorByComponent("recorder", "duplicate")
				RecordErrorByEndpoint("/clears", "POST", "validation_error")
				RecordRecomputeRetry()
				RecordClearRejected()
				RecordClearDeleted()
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)

			So(testutil.ToFloat64(current().queueCapacity), ShouldEqual, 1000)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given the global registry", t, func() {
		RecordClearRecorded()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes dropwatch metrics", func() {
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "dropwatch_clears_recorded_total")
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a reconfigured global manager", t, func() {
		Configure(WithMetricsEnabled(false), WithRefreshInterval(3*time.Second))
		defer Configure()

		Convey("Then recording is a no-op on a fresh registry", func() {
			So(RefreshInterval(), ShouldEqual, 3*time.Second)
			RecordClearRecorded()
			So(testutil.ToFloat64(current().clearsRecorded), ShouldEqual, 0)
		})

		Convey("Then reconfiguring twice does not register duplicates", func() {
			So(func() { Configure(WithMetricsEnabled(true)) }, ShouldNotPanic)
			So(current().Enabled(), ShouldBeTrue)
		})
	})
}
