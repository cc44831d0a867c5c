// Package source provides byte-range access to the files of a Bundles2
// directory, either from a local game installation or from the patch CDN.
package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIO reports a local read failure.
	ErrIO = errors.New("source i/o error")

	// ErrNetwork reports a remote fetch that failed after retries.
	ErrNetwork = errors.New("source network error")

	// ErrNotFound reports a bundle file that does not exist in the source.
	ErrNotFound = errors.New("bundle file not found")

	// ErrRangeUnsatisfiable reports a range that extends past the end of a file.
	ErrRangeUnsatisfiable = errors.New("range not satisfiable")
)

// Source fetches byte ranges of named files in a Bundles2 directory, for
// example "_.index.bin" or "Folders/textures.bundle.bin".
//
// Implementations must be safe for concurrent use. Fetch returns exactly
// length bytes or an error.
type Source interface {
	Fetch(ctx context.Context, name string, offset, length int64) ([]byte, error)
	Close() error
}

// Versioned is implemented by sources that know which content version they
// serve.
type Versioned interface {
	CurrentVersion(ctx context.Context) (string, error)
}

// Memory serves a fixed set of files held in memory. It is safe for
// concurrent use.
type Memory struct {
	files map[string][]byte
}

// NewMemory returns a source serving the given files. The map is copied but
// the byte slices are not.
func NewMemory(files map[string][]byte) *Memory {
	m := &Memory{files: make(map[string][]byte, len(files))}
	for name, data := range files {
		m.files[name] = data
	}
	return m
}

func (m *Memory) Fetch(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return sliceRange(name, data, offset, length)
}

func (m *Memory) Close() error {
	return nil
}

// sliceRange copies [offset, offset+length) out of data.
func sliceRange(name string, data []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(data)) {
		return nil, fmt.Errorf("%w: %s bytes %d-%d of %d", ErrRangeUnsatisfiable, name, offset, offset+length, len(data))
	}
	out := make([]byte, length)
	copy(out, data[offset:offset+length])
	return out, nil
}
