package repository

import (
	"os"

	"github.com/okian/petal/pkg/logger"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithFileMode sets the permissions of saved artifacts.
func WithFileMode(mode os.FileMode) Option {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// CachedOption applies a configuration option to Cached.
type CachedOption func(*Cached)

// WithLogger sets the logger used to report loads.
func WithLogger(l logger.Logger) CachedOption {
	return func(c *Cached) {
		if l != nil {
			c.log = l
		}
	}
}
