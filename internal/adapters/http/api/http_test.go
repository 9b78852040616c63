package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/petal/internal/adapters/http/api"
	"github.com/okian/petal/internal/adapters/repository"
	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
	"github.com/okian/petal/internal/domain/validate"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	outcome  *service.Outcome
	err      error
	gotName  string
	gotBody  string
	sample   []byte
	sampleEr error
}

func (m *mockDependencies) Analyze(_ context.Context, name string, r io.Reader) (*service.Outcome, error) {
	m.gotName = name
	data, _ := io.ReadAll(r)
	m.gotBody = string(data)
	return m.outcome, m.err
}

func (m *mockDependencies) SampleCSV() ([]byte, error) { return m.sample, m.sampleEr }

func (m *mockDependencies) Schema() types.Schema { return types.DefaultSchema() }

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func validOutcome() *service.Outcome {
	return &service.Outcome{
		FileName: "flowers.csv",
		Rows:     1,
		Validation: validate.Result{
			Valid:   true,
			Cleaned: &table.Frame{Columns: types.RequiredColumns(), Rows: [][]float64{{5.1, 3.5, 1.4, 0.2}}},
		},
		Predictions: &predict.Table{
			Classes:       types.ClassNames(),
			Probabilities: [][]float64{{0.97, 0.03, 0}},
			Predicted:     []string{"setosa"},
		},
	}
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, 1<<20,
		&mockStatsProvider{stats: map[string]interface{}{"uploads": 3, "activeSessions": 0}},
		&mockStatsProvider{stats: map[string]interface{}{"activeSessions": 2}},
		nil,
	)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		mux := newMux(&mockDependencies{outcome: validOutcome()})

		Convey("Then health endpoint should expose metrics", func() {
			w := do(mux, httptest.NewRequest("GET", "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats endpoint should merge the provider stats", func() {
			w := do(mux, httptest.NewRequest("GET", "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]interface{}
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["uploads"], ShouldEqual, float64(3))
			So(stats["activeSessions"], ShouldEqual, float64(2))
		})

		Convey("Then the dashboard should be served", func() {
			w := do(mux, httptest.NewRequest("GET", "/dashboard", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "/stats")
		})

		Convey("Then wrong methods should not be found", func() {
			So(do(mux, httptest.NewRequest("GET", "/api/v1/predict", nil)).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, httptest.NewRequest("POST", "/api/v1/sample", nil)).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, httptest.NewRequest("POST", "/stats", nil)).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPredictHandler(t *testing.T) {
	Convey("Given the predict endpoint", t, func() {
		deps := &mockDependencies{outcome: validOutcome()}
		mux := newMux(deps)

		Convey("When a raw csv body is posted", func() {
			req := httptest.NewRequest("POST", "/api/v1/predict", strings.NewReader("a,b\n1,2\n"))
			req.Header.Set("Content-Type", "text/csv")
			w := do(mux, req)

			Convey("Then the predictions should be returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotBody, ShouldEqual, "a,b\n1,2\n")
				So(deps.gotName, ShouldEqual, "upload.csv")

				var resp struct {
					Rows        int            `json:"rows"`
					Counts      map[string]int `json:"counts"`
					Predictions []struct {
						Probabilities  map[string]float64 `json:"probabilities"`
						PredictedClass string             `json:"predicted_class"`
					} `json:"predictions"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Rows, ShouldEqual, 1)
				So(resp.Counts["setosa"], ShouldEqual, 1)
				So(resp.Predictions[0].PredictedClass, ShouldEqual, "setosa")
				So(resp.Predictions[0].Probabilities["versicolor"], ShouldEqual, 0.03)
			})
		})

		Convey("When a multipart file is posted", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			fw, err := mw.CreateFormFile("file", "mine.csv")
			So(err, ShouldBeNil)
			_, _ = fw.Write([]byte("x,y\n"))
			So(mw.Close(), ShouldBeNil)

			req := httptest.NewRequest("POST", "/api/v1/predict", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := do(mux, req)

			Convey("Then the file name and contents should reach the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotName, ShouldEqual, "mine.csv")
				So(deps.gotBody, ShouldEqual, "x,y\n")
			})
		})

		Convey("When the multipart form lacks the file field", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			_ = mw.WriteField("other", "value")
			So(mw.Close(), ShouldBeNil)

			req := httptest.NewRequest("POST", "/api/v1/predict", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := do(mux, req)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When csv output is requested", func() {
			w := do(mux, httptest.NewRequest("POST", "/api/v1/predict?format=csv", strings.NewReader("a\n")))

			Convey("Then the prediction file should be downloaded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
				So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "iris_predictions.csv")
				So(w.Body.String(), ShouldEqual, "setosa,versicolor,virginica,predicted_class\n0.97,0.03,0.0,setosa\n")
			})
		})

		Convey("When validation fails", func() {
			deps.outcome = &service.Outcome{Validation: validate.Result{
				Valid:   false,
				Errors:  []string{`missing required columns: ["petal width (cm)"]`},
				Missing: []string{"petal width (cm)"},
			}}
			w := do(mux, httptest.NewRequest("POST", "/api/v1/predict", strings.NewReader("a\n")))

			Convey("Then the errors should be reported as unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["code"], ShouldEqual, "validation_failed")
				So(resp["message"], ShouldEqual, `missing required columns: ["petal width (cm)"]`)
				So(resp["missing_columns"], ShouldResemble, []interface{}{"petal width (cm)"})
			})
		})

		errorCases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"unreadable", fmt.Errorf("%w: bare quote", table.ErrUnreadable), http.StatusBadRequest, "unreadable"},
			{"too large", service.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
			{"model missing", fmt.Errorf("%w: open model.json", repository.ErrModelLoad), http.StatusServiceUnavailable, "model_unavailable"},
			{"no rows", predict.ErrNoRows, http.StatusUnprocessableEntity, "prediction_failed"},
			{"unexpected", errors.New("boom"), http.StatusInternalServerError, "prediction_failed"},
		}
		for _, tc := range errorCases {
			Convey("When the service fails with "+tc.name, func() {
				deps.err = tc.err
				w := do(mux, httptest.NewRequest("POST", "/api/v1/predict", strings.NewReader("a\n")))

				var resp map[string]string
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(w.Code, ShouldEqual, tc.status)
				So(resp["code"], ShouldEqual, tc.code)
				So(resp["message"], ShouldEqual, tc.err.Error())
			})
		}
	})
}

func TestSampleHandler(t *testing.T) {
	Convey("Given the sample endpoints", t, func() {
		deps := &mockDependencies{sample: []byte("h\n1.0\n")}
		mux := newMux(deps)

		Convey("Then the sample should download as csv", func() {
			w := do(mux, httptest.NewRequest("GET", "/api/v1/sample", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "iris_sample_data.csv")
			So(w.Body.String(), ShouldEqual, "h\n1.0\n")
		})

		Convey("Then a failing sample should be a server error", func() {
			deps.sampleEr = errors.New("disk")
			w := do(mux, httptest.NewRequest("GET", "/api/v1/sample", nil))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("Then the schema should list the columns", func() {
			w := do(mux, httptest.NewRequest("GET", "/api/v1/schema", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			var schema types.Schema
			So(json.Unmarshal(w.Body.Bytes(), &schema), ShouldBeNil)
			So(schema.RequiredColumns, ShouldResemble, types.RequiredColumns())
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given the request id middleware", t, func() {
		var seen string
		h := api.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = api.RequestID(r.Context())
		}))

		Convey("When no id is sent", func() {
			w := do(h, httptest.NewRequest("GET", "/", nil))

			Convey("Then one should be generated", func() {
				So(seen, ShouldNotBeEmpty)
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, seen)
			})
		})

		Convey("When a valid id is sent", func() {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(api.RequestIDHeader, "6f1c1c1e-8f52-4c7a-9d0e-2b9b1f3f6c11")
			do(h, req)

			Convey("Then it should be kept", func() {
				So(seen, ShouldEqual, "6f1c1c1e-8f52-4c7a-9d0e-2b9b1f3f6c11")
			})
		})

		Convey("When a malformed id is sent", func() {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(api.RequestIDHeader, "<script>")
			do(h, req)

			Convey("Then it should be replaced", func() {
				So(seen, ShouldNotEqual, "<script>")
			})
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a wrapped kind error", t, func() {
		cause := errors.New("cause")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both kind and cause should match", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: cause")
		})

		Convey("Then a bare kind should still match", func() {
			bare := api.NewKind("api.op", api.ErrTooLarge)
			So(errors.Is(bare, api.ErrTooLarge), ShouldBeTrue)
			So(bare.Error(), ShouldEqual, "api.op: upload too large")
		})
	})
}
