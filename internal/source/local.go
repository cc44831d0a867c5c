package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/exp/mmap"
)

// Local serves bundles from a game installation on disk. Files are memory
// mapped on first use and stay mapped until Close.
type Local struct {
	dir string

	mu     sync.Mutex
	files  map[string]*mmap.ReaderAt
	closed bool
}

// NewLocal opens the Bundles2 directory under root. If root has no Bundles2
// subdirectory, root itself is used.
func NewLocal(root string) (*Local, error) {
	dir := root
	if info, err := os.Stat(filepath.Join(root, "Bundles2")); err == nil && info.IsDir() {
		dir = filepath.Join(root, "Bundles2")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: opening install directory: %w", ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrIO, dir)
	}

	slog.Debug("Using local bundles", "dir", dir)

	return &Local{
		dir:   dir,
		files: make(map[string]*mmap.ReaderAt),
	}, nil
}

// Dir returns the Bundles2 directory being served.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Fetch(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := l.open(name)
	if err != nil {
		return nil, err
	}

	if offset < 0 || length < 0 || offset+length > int64(r.Len()) {
		return nil, fmt.Errorf("%w: %s bytes %d-%d of %d", ErrRangeUnsatisfiable, name, offset, offset+length, r.Len())
	}

	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if n, err := r.ReadAt(buf, offset); n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, name, err)
	}

	return buf, nil
}

func (l *Local) open(name string) (*mmap.ReaderAt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("%w: source is closed", ErrIO)
	}
	if r, ok := l.files[name]; ok {
		return r, nil
	}

	p := filepath.Join(l.dir, filepath.FromSlash(name))
	r, err := mmap.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("%w: mapping %s: %w", ErrIO, p, err)
	}

	l.files[name] = r
	return r, nil
}

// Close unmaps every open file. It must not run concurrently with Fetch.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	for name, r := range l.files {
		if cerr := r.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("unmapping %s: %w", name, cerr))
		}
	}
	l.files = nil
	l.closed = true

	return err
}
