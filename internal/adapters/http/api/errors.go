package api

import (
	"errors"
	"net/http"

	"github.com/okian/petal/internal/adapters/repository"
	service "github.com/okian/petal/internal/app"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
)

// Sentinel kinds for API errors.
var (
	ErrServe            = errors.New("swagger serve failed")
	ErrBadRequest       = errors.New("bad request")
	ErrUnreadable       = errors.New("unreadable upload")
	ErrTooLarge         = errors.New("upload too large")
	ErrValidation       = errors.New("validation failed")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrPrediction       = errors.New("prediction failed")
)

// KindError tags an error with the operation that failed and its kind.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// WrapKind returns err tagged with op and kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the text shown to clients: the cause when there is one.
func (e *KindError) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// classify maps a service error onto an API kind, status and code.
func classify(op string, err error) (int, string, error) {
	switch {
	case errors.Is(err, table.ErrUnreadable):
		return http.StatusBadRequest, "unreadable", WrapKind(op, ErrUnreadable, err)
	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrTooLarge, err)
	case errors.Is(err, repository.ErrModelLoad), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "model_unavailable", WrapKind(op, ErrModelUnavailable, err)
	case errors.Is(err, predict.ErrNoRows), errors.Is(err, predict.ErrColumnMismatch):
		return http.StatusUnprocessableEntity, "prediction_failed", WrapKind(op, ErrPrediction, err)
	default:
		return http.StatusInternalServerError, "prediction_failed", WrapKind(op, ErrPrediction, err)
	}
}
