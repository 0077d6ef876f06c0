// Package scratch manages worker-local temporary directories used while
// inspecting files.
package scratch

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a temporary directory owned by one inspection.
type Dir struct {
	path string
}

// New creates a fresh directory under base (os.TempDir when empty).
func New(base, prefix string) (*Dir, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o750); err != nil {
			return nil, fmt.Errorf("create scratch base: %w", err)
		}
	}
	path, err := os.MkdirTemp(base, sanitize(prefix)+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Join returns the path of name inside the directory.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.path, filepath.Base(name))
}

// WriteFile copies r into a file named name and returns its path.
func (d *Dir) WriteFile(name string, r io.Reader) (string, error) {
	path := d.Join(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

// ErrArchiveTooLarge is returned when extraction exceeds the size limit.
var ErrArchiveTooLarge = errors.New("archive exceeds extraction limit")

// Unzip extracts archive into subdir and returns the extracted file paths.
// Entries escaping subdir are rejected. maxBytes <= 0 disables the limit.
func (d *Dir) Unzip(archive, subdir string, maxBytes int64) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = zr.Close()
		return nil, fmt.Errorf("zip entry escapes extraction dir: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	root := filepath.Join(d.path, filepath.Base(subdir))
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create extract dir: %w", err)
	}

	var (
		files   []string
		written int64
	)
	for _, entry := range zr.File {
		target := filepath.Join(root, filepath.Clean(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("zip entry %q escapes extraction dir", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return nil, fmt.Errorf("create %s: %w", entry.Name, err)
			}
			continue
		}
		n, err := extractEntry(entry, target, limitRemaining(maxBytes, written))
		written += n
		if err != nil {
			return nil, err
		}
		files = append(files, target)
	}
	return files, nil
}

func limitRemaining(maxBytes, written int64) int64 {
	if maxBytes <= 0 {
		return -1
	}
	return maxBytes - written
}

func extractEntry(entry *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", entry.Name, err)
	}
	defer func() { _ = dst.Close() }()

	var reader io.Reader = src
	if remaining >= 0 {
		reader = io.LimitReader(src, remaining+1)
	}
	n, err := io.Copy(dst, reader)
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	if remaining >= 0 && n > remaining {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}

// Close removes the directory and everything in it.
func (d *Dir) Close() error {
	if d == nil || d.path == "" {
		return nil
	}
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove scratch dir: %w", err)
	}
	return nil
}

func sanitize(prefix string) string {
	if prefix == "" {
		return "ingest"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, prefix)
}
