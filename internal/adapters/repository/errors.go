package repository

import "errors"

// Sentinel kinds for model artifact errors.
var (
	ErrModelLoad = errors.New("could not load model")
	ErrModelSave = errors.New("could not save model")
	ErrNoPath    = errors.New("model path is empty")
	ErrNilModel  = errors.New("model is nil")
)
