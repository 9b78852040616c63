package config

import (
	"errors"
)

// Sentinel errors. Load wraps parser and provider failures in ErrLoadConfig
// and rejected values in ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
