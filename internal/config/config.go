// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, mirrors logs into a size-rotated file.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ModelPath points at the serialized random forest.
	ModelPath string `koanf:"model_path"`

	// MaxUploadBytes caps a single CSV upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// PreviewRows and PredictionPreviewRows bound the tables shown on the page.
	PreviewRows           int `koanf:"preview_rows"`
	PredictionPreviewRows int `koanf:"prediction_preview_rows"`

	// SessionTTLMinutes and SessionMaxCount bound the browser session store.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`
	SessionMaxCount   int `koanf:"session_max_count"`

	// ResultCacheSize is how many analysed uploads are remembered.
	ResultCacheSize int `koanf:"result_cache_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		LogMaxSizeMB:          50,
		LogMaxBackups:         3,
		LogMaxAgeDays:         14,
		Addr:                  ":9080",
		ModelPath:             "random_forest_iris_model.json",
		MaxUploadBytes:        32 << 20,
		PreviewRows:           15,
		PredictionPreviewRows: 30,
		SessionTTLMinutes:     30,
		SessionMaxCount:       10_000,
		ResultCacheSize:       256,
	}
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
