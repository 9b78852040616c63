package predict

import "errors"

// Sentinel kinds for prediction errors.
var (
	ErrColumnMismatch = errors.New("columns do not match the model features")
	ErrNoRows         = errors.New("table has no rows to predict")
	ErrShape          = errors.New("model returned probabilities of the wrong shape")
	ErrNoModel        = errors.New("no model loaded")
)
