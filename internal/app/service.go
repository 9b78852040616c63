// Package service provides the core business service that implements
// the dependencies required by the HTTP API, the site and the CLI.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/okian/petal/internal/adapters/repository"
	"github.com/okian/petal/internal/domain/forest"
	"github.com/okian/petal/internal/domain/predict"
	"github.com/okian/petal/internal/domain/table"
	"github.com/okian/petal/internal/domain/types"
	"github.com/okian/petal/internal/domain/validate"
	"github.com/okian/petal/pkg/logger"
	"github.com/okian/petal/pkg/metrics"
)

// Upload outcomes used for metrics and stats.
const (
	OutcomeValid      = "valid"
	OutcomeInvalid    = "invalid"
	OutcomeUnreadable = "unreadable"
	OutcomeFailed     = "failed"
)

// Outcome is the result of analysing one upload. It is shared between
// requests through the result cache and must not be modified.
type Outcome struct {
	FileName    string
	Digest      string
	Rows        int
	Preview     *table.Raw
	Validation  validate.Result
	Predictions *predict.Table
	Cached      bool
}

// Service implements the API dependencies for the predictor.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	validator *validate.Validator
	predictor *predict.Predictor
	results   *lru.Cache[string, *Outcome]

	// Configuration
	modelPath       string
	previewRows     int
	resultCacheSize int
	maxUploadBytes  int64

	// State
	started bool

	uploads       atomic.Int64
	valid         atomic.Int64
	invalid       atomic.Int64
	unreadable    atomic.Int64
	failed        atomic.Int64
	rowsPredicted atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithModelStore sets where the model is loaded from. A store that is not
// already a *repository.Cached gets wrapped in one.
func WithModelStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithModelPath sets the artifact file used when no store is given.
func WithModelPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.modelPath = path
		}
	}
}

// WithPreviewRows sets how many uploaded rows are kept for preview.
func WithPreviewRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewRows = n
		}
	}
}

// WithResultCacheSize sets how many analysed uploads are remembered.
func WithResultCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resultCacheSize = n
		}
	}
}

// WithMaxUploadBytes bounds the size of a single upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithValidator replaces the iris column validator.
func WithValidator(v *validate.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelPath:       "random_forest_iris_model.json",
		previewRows:     15,
		resultCacheSize: 256,
		maxUploadBytes:  32 << 20,
		validator:       validate.New(),
		predictor:       predict.New(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components. The model itself is loaded
// on first use.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting predictor service...")

	if s.store == nil {
		s.store = repository.NewFileStore(s.modelPath)
	}
	if _, ok := s.store.(*repository.Cached); !ok {
		s.store = repository.NewCached(s.store, repository.WithLogger(s.logger.Named("repository")))
	}

	results, err := lru.New[string, *Outcome](s.resultCacheSize)
	if err != nil {
		return fmt.Errorf("result cache: %w", err)
	}
	s.results = results

	s.started = true
	s.logger.Info(ctx, "predictor service started",
		logger.String("modelPath", s.modelPath),
		logger.Int("previewRows", s.previewRows),
		logger.Int("resultCacheSize", s.resultCacheSize),
	)

	return nil
}

// Stop shuts down the service and drops cached results.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping predictor service...")
	s.results.Purge()
	s.started = false
	s.logger.Info(context.Background(), "predictor service stopped")
}

func (s *Service) components() (repository.Store, *lru.Cache[string, *Outcome], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.results, nil
}

// Model returns the loaded model, loading it on first use.
func (s *Service) Model(ctx context.Context) (*forest.Forest, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return store.Load(ctx)
}

// Analyze reads an upload, keeps a preview, validates it and, when valid,
// predicts every row. Unreadable files return an error wrapping
// table.ErrUnreadable. Validation failures are not errors: they come back
// in Outcome.Validation. On a model or prediction error the returned
// outcome still carries the preview and validation.
func (s *Service) Analyze(ctx context.Context, name string, r io.Reader) (*Outcome, error) {
	_, results, err := s.components()
	if err != nil {
		return nil, err
	}
	s.uploads.Add(1)

	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		s.record(OutcomeUnreadable)
		return nil, fmt.Errorf("%w: %v", table.ErrUnreadable, err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		s.record(OutcomeFailed)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.maxUploadBytes)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if hit, ok := results.Get(digest); ok {
		metrics.RecordResultCacheHit()
		out := *hit
		out.FileName = name
		out.Cached = true
		s.record(outcomeOf(&out))
		s.logger.Debug(ctx, "served upload from result cache", logger.String("digest", digest))
		return &out, nil
	}
	metrics.RecordResultCacheMiss()

	raw, err := table.Read(bytes.NewReader(data))
	if err != nil {
		s.record(OutcomeUnreadable)
		metrics.RecordErrorByComponent("table", "unreadable")
		s.logger.Warn(ctx, "unreadable upload", logger.String("file", name), logger.Error(err))
		return nil, err
	}

	out := &Outcome{
		FileName:   name,
		Digest:     digest,
		Rows:       raw.Len(),
		Preview:    raw.Head(s.previewRows),
		Validation: s.validator.Validate(raw),
	}
	if !out.Validation.Valid {
		for _, kind := range out.Validation.Kinds {
			metrics.RecordValidationError(kind)
		}
		s.record(OutcomeInvalid)
		s.logger.Info(ctx, "upload failed validation",
			logger.String("file", name),
			logger.Any("errors", out.Validation.Errors),
		)
		results.Add(digest, out)
		return out, nil
	}

	predictions, err := s.Predict(ctx, out.Validation.Cleaned)
	if err != nil {
		s.record(OutcomeFailed)
		s.logger.Error(ctx, "prediction failed", logger.String("file", name), logger.Error(err))
		return out, err
	}
	out.Predictions = predictions
	s.record(OutcomeValid)
	results.Add(digest, out)

	s.logger.Info(ctx, "upload predicted",
		logger.String("file", name),
		logger.Int("rows", predictions.Len()),
	)
	return out, nil
}

// Predict runs the model over an already cleaned frame.
func (s *Service) Predict(ctx context.Context, cleaned *table.Frame) (*predict.Table, error) {
	model, err := s.Model(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := s.predictor.Predict(ctx, model, cleaned)
	if err != nil {
		metrics.RecordErrorByComponent("predict", "inference")
		return nil, err
	}
	metrics.RecordPredictionLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	metrics.RecordRowsPredicted(out.Len())
	s.rowsPredicted.Add(int64(out.Len()))
	return out, nil
}

// SampleCSV returns the downloadable template with one row per species.
func (s *Service) SampleCSV() ([]byte, error) {
	f := &table.Frame{Columns: types.RequiredColumns(), Rows: types.SampleRows()}
	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Schema returns the upload contract.
func (s *Service) Schema() types.Schema {
	schema := types.DefaultSchema()
	schema.RequiredColumns = s.validator.Required()
	return schema
}

// PreviewRows returns the configured preview length.
func (s *Service) PreviewRows() int { return s.previewRows }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"modelPath":       s.modelPath,
		"previewRows":     s.previewRows,
		"resultCacheSize": s.resultCacheSize,
		"uploads":         s.uploads.Load(),
		"valid":           s.valid.Load(),
		"invalid":         s.invalid.Load(),
		"unreadable":      s.unreadable.Load(),
		"failed":          s.failed.Load(),
		"rowsPredicted":   s.rowsPredicted.Load(),
	}

	if s.started {
		stats["cachedResults"] = s.results.Len()
		if c, ok := s.store.(*repository.Cached); ok {
			loaded, at := c.Loaded()
			stats["modelLoaded"] = loaded
			if loaded {
				stats["modelLoadedAt"] = at.UTC().Format(time.RFC3339)
			}
		}
	}

	return stats
}

func (s *Service) record(outcome string) {
	switch outcome {
	case OutcomeValid:
		s.valid.Add(1)
	case OutcomeInvalid:
		s.invalid.Add(1)
	case OutcomeUnreadable:
		s.unreadable.Add(1)
	default:
		s.failed.Add(1)
	}
	metrics.RecordUpload(outcome)
}

func outcomeOf(o *Outcome) string {
	if o.Validation.Valid {
		return OutcomeValid
	}
	return OutcomeInvalid
}
