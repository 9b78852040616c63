// Package repository stores and loads the serialized model artifact.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/petal/internal/domain/forest"
)

const defaultFileMode os.FileMode = 0o644

// Store provides read/write access to the model artifact.
type Store interface {
	// Load returns the model. Errors wrap ErrModelLoad.
	Load(ctx context.Context) (*forest.Forest, error)
	// Save replaces the stored model.
	Save(ctx context.Context, f *forest.Forest) error
}

// FileStore keeps the artifact as a single JSON file on local disk.
type FileStore struct {
	path string
	mode os.FileMode
}

// NewFileStore returns a store for the artifact at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, mode: defaultFileMode}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the artifact location.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the artifact.
func (s *FileStore) Load(ctx context.Context) (*forest.Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, ErrNoPath)
	}
	fh, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	defer func() { _ = fh.Close() }()

	f, err := forest.Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, s.path, err)
	}
	return f, nil
}

// Save writes the artifact to a temporary file in the same directory and
// renames it into place, so readers never observe a partial file.
func (s *FileStore) Save(ctx context.Context, f *forest.Forest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("%w: %w", ErrModelSave, ErrNilModel)
	}
	if s.path == "" {
		return fmt.Errorf("%w: %w", ErrModelSave, ErrNoPath)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := f.Save(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %w", ErrModelSave, err)
	}
	return nil
}
