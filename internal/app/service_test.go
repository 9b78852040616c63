package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/okian/petal/internal/adapters/repository"
	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/dataset"
	"github.com/okian/petal/internal/domain/forest"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/pkg/logger"
	"github.com/okian/petal/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

const scenarioCSV = "sepal length (cm),sepal width (cm),petal length (cm),petal width (cm)\n" +
	"5.1,3.5,1.4,0.2\n6.3,3.3,4.7,1.6\n6.5,3.0,5.8,2.2\n"

var (
	modelOnce sync.Once
	modelDir  string
	modelErr  error
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// modelPath trains a small forest once per test binary.
func modelPath(t *testing.T) string {
	t.Helper()
	modelOnce.Do(func() {
		modelDir, modelErr = os.MkdirTemp("", "petal-service-test")
		if modelErr != nil {
			return
		}
		d, err := dataset.Load()
		if err != nil {
			modelErr = err
			return
		}
		f, err := forest.Fit(context.Background(), d.X, d.Y, d.Features, d.Classes, forest.WithTrees(10))
		if err != nil {
			modelErr = err
			return
		}
		modelErr = repository.NewFileStore(filepath.Join(modelDir, "model.json")).Save(context.Background(), f)
	})
	if modelErr != nil {
		t.Fatalf("prepare model: %v", modelErr)
	}
	return filepath.Join(modelDir, "model.json")
}

func started(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{service.WithModelPath(modelPath(t))}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("Then using it before Start should fail", func() {
			_, err := svc.Analyze(context.Background(), "x.csv", strings.NewReader(scenarioCSV))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())
			defer svc.Stop()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(context.Background()), ShouldBeNil)
			})
		})

		Convey("Then stopping an idle service should not panic", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})
}

func TestService_Analyze(t *testing.T) {
	Convey("Given a started service with a trained model", t, func() {
		svc := started(t)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When the scenario rows are uploaded", func() {
			out, err := svc.Analyze(ctx, "scenario.csv", strings.NewReader(scenarioCSV))

			Convey("Then every row should be predicted", func() {
				So(err, ShouldBeNil)
				So(out.Validation.Valid, ShouldBeTrue)
				So(out.Rows, ShouldEqual, 3)
				So(out.Predictions.Len(), ShouldEqual, 3)
				for _, p := range out.Predictions.Probabilities {
					So(p[0]+p[1]+p[2], ShouldAlmostEqual, 1, 1e-6)
				}
				So(out.Predictions.Predicted[0], ShouldEqual, "setosa")
				So(out.Cached, ShouldBeFalse)
			})

			Convey("And the same bytes are uploaded again", func() {
				again, err := svc.Analyze(ctx, "copy.csv", strings.NewReader(scenarioCSV))

				Convey("Then the cached result should be served under the new name", func() {
					So(err, ShouldBeNil)
					So(again.Cached, ShouldBeTrue)
					So(again.FileName, ShouldEqual, "copy.csv")
					So(again.Predictions.Predicted, ShouldResemble, out.Predictions.Predicted)
					So(out.FileName, ShouldEqual, "scenario.csv")
				})
			})
		})

		Convey("When a required column is missing", func() {
			csv := "sepal length (cm),sepal width (cm),petal length (cm)\n5.1,3.5,1.4\n"
			out, err := svc.Analyze(ctx, "short.csv", strings.NewReader(csv))

			Convey("Then the outcome should name exactly that column", func() {
				So(err, ShouldBeNil)
				So(out.Validation.Valid, ShouldBeFalse)
				So(out.Validation.Errors, ShouldResemble, []string{`missing required columns: ["petal width (cm)"]`})
				So(out.Predictions, ShouldBeNil)
				So(out.Preview.Len(), ShouldEqual, 1)
			})
		})

		Convey("When a cell is not numeric", func() {
			csv := strings.Replace(scenarioCSV, "5.1", "abc", 1)
			out, err := svc.Analyze(ctx, "abc.csv", strings.NewReader(csv))

			Convey("Then the aggregate count should cite the column", func() {
				So(err, ShouldBeNil)
				So(out.Validation.Valid, ShouldBeFalse)
				So(out.Validation.Errors[0], ShouldContainSubstring, "sepal length (cm)=1")
			})
		})

		Convey("When the file is not valid csv", func() {
			_, err := svc.Analyze(ctx, "bad.csv", strings.NewReader("a,b\n1,2,3\n"))

			Convey("Then an unreadable error should be returned", func() {
				So(errors.Is(err, table.ErrUnreadable), ShouldBeTrue)
				So(svc.GetStats()["unreadable"], ShouldEqual, int64(1))
			})
		})

		Convey("When the header is present but there are no rows", func() {
			header := strings.SplitN(scenarioCSV, "\n", 2)[0] + "\n"
			out, err := svc.Analyze(ctx, "empty.csv", strings.NewReader(header))

			Convey("Then validation passes but prediction reports the empty table", func() {
				So(err, ShouldNotBeNil)
				So(out, ShouldNotBeNil)
				So(out.Validation.Valid, ShouldBeTrue)
				So(out.Predictions, ShouldBeNil)
			})
		})

		Convey("When the preview is longer than the limit", func() {
			var b strings.Builder
			b.WriteString(strings.SplitN(scenarioCSV, "\n", 2)[0] + "\n")
			for i := 0; i < 40; i++ {
				b.WriteString("5.1,3.5,1.4,0.2\n")
			}
			out, err := svc.Analyze(ctx, "long.csv", strings.NewReader(b.String()))

			Convey("Then only the first rows should be kept for preview", func() {
				So(err, ShouldBeNil)
				So(out.Rows, ShouldEqual, 40)
				So(out.Preview.Len(), ShouldEqual, 15)
				So(out.Predictions.Len(), ShouldEqual, 40)
			})
		})
	})
}

func TestService_Limits(t *testing.T) {
	Convey("Given a service with a tiny upload limit", t, func() {
		svc := started(t, service.WithMaxUploadBytes(10))
		defer svc.Stop()

		_, err := svc.Analyze(context.Background(), "big.csv", strings.NewReader(scenarioCSV))
		So(errors.Is(err, service.ErrUploadTooLarge), ShouldBeTrue)
	})

	Convey("Given a service whose model file is missing", t, func() {
		svc := service.New(service.WithModelPath(filepath.Join(t.TempDir(), "missing.json")))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		out, err := svc.Analyze(context.Background(), "ok.csv", strings.NewReader(scenarioCSV))

		Convey("Then the model load error should surface with the validation kept", func() {
			So(errors.Is(err, repository.ErrModelLoad), ShouldBeTrue)
			So(out, ShouldNotBeNil)
			So(out.Validation.Valid, ShouldBeTrue)
			So(svc.GetStats()["modelLoaded"], ShouldEqual, false)
		})
	})

	Convey("Given a model trained with its classes in another order", t, func() {
		d, err := dataset.Load()
		So(err, ShouldBeNil)
		reversed := []string{d.Classes[2], d.Classes[1], d.Classes[0]}
		f, err := forest.Fit(context.Background(), d.X, d.Y, d.Features, reversed, forest.WithTrees(3))
		So(err, ShouldBeNil)
		path := filepath.Join(t.TempDir(), "reversed.json")
		So(repository.NewFileStore(path).Save(context.Background(), f), ShouldBeNil)

		svc := service.New(service.WithModelPath(path))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		_, err = svc.Analyze(context.Background(), "ok.csv", strings.NewReader(scenarioCSV))

		Convey("Then prediction should refuse to mislabel the rows", func() {
			So(errors.Is(err, predict.ErrShape), ShouldBeTrue)
		})
	})
}

func TestService_UploadOutcomeHelp(t *testing.T) {
	Convey("Given the uploads counter", t, func() {
		metrics.RecordUpload(service.OutcomeValid)
		families, err := metrics.GetRegistry().Gather()
		So(err, ShouldBeNil)

		help := ""
		for _, f := range families {
			if strings.HasSuffix(f.GetName(), "uploads_total") {
				help = f.GetHelp()
			}
		}

		Convey("Then its help should name every outcome the service records", func() {
			for _, outcome := range []string{service.OutcomeValid, service.OutcomeInvalid, service.OutcomeUnreadable, service.OutcomeFailed} {
				So(help, ShouldContainSubstring, outcome)
			}
		})
	})
}

func TestService_Sample(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New()

		Convey("Then the sample csv should hold one row per species", func() {
			data, err := svc.SampleCSV()
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, scenarioCSV)
		})

		Convey("Then the schema should list the required columns", func() {
			schema := svc.Schema()
			So(len(schema.RequiredColumns), ShouldEqual, 4)
			So(schema.OutputColumns[3], ShouldEqual, "predicted_class")
		})
	})
}
