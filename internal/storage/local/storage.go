package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage provides a simple file-based storage backend.
// It stores objects under a specified base path on the local filesystem.
type Storage struct {
	basePath string
}

// NewStorage creates a new Storage instance with the given basePath.
// The basePath defines the root directory where objects will be stored.
func NewStorage(basePath string) (*Storage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", basePath, err)
	}

	return &Storage{basePath: basePath}, nil
}

// Save stores the object in the given subdirectory (e.g. "originals" or
// "results") under the provided name and returns its key.
func (s *Storage) Save(_ context.Context, subdir, name string, src io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, subdir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dstPath := filepath.Join(dir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", dstPath, err)
	}

	return filepath.Join(subdir, name), nil
}

// Load opens the object by key and returns a reader.
func (s *Storage) Load(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.basePath, key))
}

// Delete removes the object by key.
func (s *Storage) Delete(_ context.Context, key string) error {
	return os.Remove(filepath.Join(s.basePath, key))
}
