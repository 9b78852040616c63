package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test_namespace")
			subsystemOpt := WithSubsystem("test_subsystem")
			metricPrefixOpt := WithMetricPrefix("test_prefix")
			predictionBucketsOpt := WithPredictionBuckets([]float64{0.1, 0.5, 1.0})
			httpBucketsOpt := WithHTTPBuckets([]float64{1, 10, 100})
			metricsEnabledOpt := WithMetricsEnabled(true)
			refreshIntervalOpt := WithRefreshInterval(5 * time.Second)
			constLabelsOpt := WithConstLabels(map[string]string{"env": "test"})

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(metricPrefixOpt, ShouldNotBeNil)
				So(predictionBucketsOpt, ShouldNotBeNil)
				So(httpBucketsOpt, ShouldNotBeNil)
				So(metricsEnabledOpt, ShouldNotBeNil)
				So(refreshIntervalOpt, ShouldNotBeNil)
				So(constLabelsOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
				So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_prefix"),
				WithPredictionBuckets([]float64{0.1, 0.5, 1.0}),
				WithHTTPBuckets([]float64{1, 10, 100}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithConstLabels(map[string]string{"env": "test", "version": "1.0"}),
				WithRegistry(registry),
			)
			manager.rowsPredicted.Add(3)

			Convey("Then the names should carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_prefix_rows_predicted_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, 10*time.Second)
			})
		})

		Convey("When creating two managers on separate registries", func() {
			Convey("Then registration should not collide", func() {
				So(func() {
					NewManager()
					NewManager()
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording upload outcomes", func() {
			before := testutil.ToFloat64(globalManager.uploads.WithLabelValues("valid"))
			RecordUpload("valid")
			RecordUpload("valid")
			RecordUpload("invalid")

			Convey("Then the outcome counters should advance", func() {
				So(testutil.ToFloat64(globalManager.uploads.WithLabelValues("valid")), ShouldEqual, before+2)
			})
		})

		Convey("When recording rows predicted", func() {
			before := testutil.ToFloat64(globalManager.rowsPredicted)
			RecordRowsPredicted(3)
			RecordRowsPredicted(0)
			RecordRowsPredicted(-4)

			Convey("Then only positive counts should be added", func() {
				So(testutil.ToFloat64(globalManager.rowsPredicted), ShouldEqual, before+3)
			})
		})

		Convey("When recording a model load", func() {
			RecordModelLoad(true, 12.5, 100)

			Convey("Then the model gauges should reflect it", func() {
				So(testutil.ToFloat64(globalManager.modelLoaded), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.modelTrees), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.modelLoadDuration), ShouldEqual, 12.5)
			})

			Convey("And a failed load should clear the loaded flag", func() {
				RecordModelLoad(false, 1, 0)
				So(testutil.ToFloat64(globalManager.modelLoaded), ShouldEqual, 0)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordValidationError("missing_columns")
					RecordValidationError("non_numeric")
					RecordPredictionLatency(1.5)
					RecordResultCacheHit()
					RecordResultCacheMiss()
					UpdateActiveSessions(4)
					RecordHTTPRequest("/upload", "POST", "200")
					RecordHTTPRequestDuration("/upload", "POST", "200", 5.0)
					RecordErrorByComponent("table", "unreadable")
					RecordErrorByType("client_error", "medium")
					RecordErrorByEndpoint("/api/v1/predict", "POST", "client_error")
					RecordErrorLatency("http", "client_error", 2.0)
					UpdateSystemMemoryUsage(1024 * 1024 * 100)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsDisabled(t *testing.T) {
	Convey("Given the global manager is disabled", t, func() {
		globalManager.enabled = false
		defer func() { globalManager.enabled = true }()

		before := testutil.ToFloat64(globalManager.resultCacheHits)
		RecordResultCacheHit()

		Convey("Then recording should be a no-op", func() {
			So(testutil.ToFloat64(globalManager.resultCacheHits), ShouldEqual, before)
		})
	})
}

func TestMetricsRegistryExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordUpload("unreadable")

		Convey("Then gathering should expose petal metrics", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "petal_predictor_uploads_total")
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics concurrency", t, func() {
		Convey("When recording metrics concurrently", func() {
			done := make(chan bool, 10)

			for i := 0; i < 10; i++ {
				go func(id int) {
					for j := 0; j < 100; j++ {
						RecordUpload("valid")
						RecordRowsPredicted(j)
						RecordPredictionLatency(float64(j))
						RecordHTTPRequest("/test", "GET", "200")
					}
					done <- true
				}(i)
			}

			for i := 0; i < 10; i++ {
				<-done
			}

			Convey("Then it should handle concurrent access without panics", func() {
				So(true, ShouldBeTrue)
			})
		})
	})
}
