package site

import "github.com/okian/petal/pkg/logger"

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithPredictionPreviewRows sets how many prediction rows the page shows.
func WithPredictionPreviewRows(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.predictionRows = n
		}
	}
}

// WithMaxUploadBytes bounds the multipart request size.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithSecureCookies marks the session cookie Secure, for TLS deployments.
func WithSecureCookies(on bool) Option {
	return func(h *Handler) {
		h.secureCookies = on
	}
}
