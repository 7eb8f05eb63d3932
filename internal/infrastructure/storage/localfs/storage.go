package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps objects as files below basePath. Keys may contain slashes;
// parent directories are created on save.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Save writes data under key. A failed write leaves no file behind.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	_, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if copyErr == nil && closeErr == nil {
		return nil
	}
	_ = os.Remove(path)
	if copyErr != nil {
		return fmt.Errorf("write file: %w", errors.Join(copyErr, closeErr))
	}
	return fmt.Errorf("close file: %w", closeErr)
}

// Path resolves key to its file on disk. Keys escaping the base directory
// are rejected.
func (s *Storage) Path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(key)))
	if cleaned == "." || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.basePath, cleaned), nil
}

// Delete removes the object. A missing object is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
