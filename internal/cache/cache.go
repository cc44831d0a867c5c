// Package cache manages the on-disk cache of downloaded index files.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Cache handles cache directory operations and file validation
type Cache struct {
	root string
}

// New returns a cache rooted at dir, or at DefaultDir when dir is empty.
func New(dir string) *Cache {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Cache{root: dir}
}

// DefaultDir returns ~/.exilefiles/cache, falling back to the working
// directory when there is no home directory.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".exilefiles", "cache")
	}
	return filepath.Join(homeDir, ".exilefiles", "cache")
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.root
}

// PatchDir returns the cache directory for a patch version
func (c *Cache) PatchDir(version string) string {
	return filepath.Join(c.root, version)
}

// IndexPath returns the path to the index file for a patch version
func (c *Cache) IndexPath(version string) string {
	return filepath.Join(c.PatchDir(version), "_.index.bin")
}

// EnsureDir creates a directory and all parent directories
func (c *Cache) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// FileExists checks if a file exists
func (c *Cache) FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// FileSize returns the size of a file, or 0 if it doesn't exist
func (c *Cache) FileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Store writes r to filename through a temporary file in the same directory,
// so a partially written file is never visible under its final name.
func (c *Cache) Store(filename string, r io.Reader) (int64, error) {
	dir := filepath.Dir(filename)
	if err := c.EnsureDir(dir); err != nil {
		return 0, fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return 0, fmt.Errorf("renaming into place: %w", err)
	}

	return n, nil
}
