package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/petal/internal/domain/forest"
	"github.com/okian/petal/pkg/logger"
	"github.com/okian/petal/pkg/metrics"
)

// Cached loads the model from the wrapped store at most once. Later calls
// share the same read-only model, or the same load error. A load cut short
// by the caller's context is not remembered.
type Cached struct {
	store Store
	log   logger.Logger

	mu     sync.Mutex
	done   bool
	model  *forest.Forest
	err    error
	loaded time.Time
}

// NewCached wraps store.
func NewCached(store Store, opts ...CachedOption) *Cached {
	c := &Cached{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached model, reading it on first use.
func (c *Cached) Load(ctx context.Context) (*forest.Forest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.model, c.err
	}

	start := time.Now()
	model, err := c.store.Load(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6

	c.done, c.model, c.err, c.loaded = true, model, err, time.Now()
	if err != nil {
		metrics.RecordModelLoad(false, elapsed, 0)
		metrics.RecordErrorByComponent("repository", "model_load")
		if c.log != nil {
			c.log.Error(ctx, "model load failed", logger.Error(err))
		}
		return nil, err
	}
	metrics.RecordModelLoad(true, elapsed, model.NumTrees())
	if c.log != nil {
		c.log.Info(ctx, "model loaded",
			logger.Int("trees", model.NumTrees()),
			logger.Any("classes", model.Classes),
			logger.Float64("duration_ms", elapsed))
	}
	return model, nil
}

// Save writes through to the wrapped store and serves f from then on.
func (c *Cached) Save(ctx context.Context, f *forest.Forest) error {
	if err := c.store.Save(ctx, f); err != nil {
		return err
	}
	c.mu.Lock()
	c.done, c.model, c.err, c.loaded = true, f, nil, time.Now()
	c.mu.Unlock()
	return nil
}

// Loaded reports whether a model is available and when it was loaded.
func (c *Cached) Loaded() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done && c.err == nil, c.loaded
}
