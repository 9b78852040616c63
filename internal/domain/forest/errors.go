package forest

import "errors"

// Sentinel kinds for model errors.
var (
	ErrEmptyTrainingSet   = errors.New("training set is empty")
	ErrLabelMismatch      = errors.New("features and labels size mismatch")
	ErrFeatureMismatch    = errors.New("feature count mismatch")
	ErrInvalidInput       = errors.New("input contains NaN")
	ErrCorruptModel       = errors.New("corrupt model artifact")
	ErrUnsupportedVersion = errors.New("unsupported model format version")
)
