// Package local implements a blob store over a shared filesystem folder.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root of the shared folder; keys resolve beneath it.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore reads and writes objects under a base directory.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// resolve joins key onto the base directory and rejects escapes.
func (s *BlobStore) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Clean(filepath.Join(s.baseDir, key))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

// GetObject opens key beneath the base directory. The bucket is ignored.
func (s *BlobStore) GetObject(_ context.Context, _ string, key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the base directory by resolve.
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

// PutObject streams r into key beneath the base directory.
func (s *BlobStore) PutObject(_ context.Context, key string, _ string, r io.Reader) (ingest.Location, error) {
	full, err := s.resolve(key)
	if err != nil {
		return ingest.Location{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return ingest.Location{}, fmt.Errorf("failed to create parent directories: %w", err)
	}
	// #nosec G304 -- path is confined to the base directory by resolve.
	f, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return ingest.Location{}, fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return ingest.Location{}, fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return ingest.Location{}, fmt.Errorf("failed to close file: %w", err)
	}
	return ingest.Location{Type: ingest.LocationFolderShared, FilePath: filepath.ToSlash(key)}, nil
}
