package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLocalFetch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Bundles2", "Folders", "data.bundle.bin"), []byte("0123456789"))
	writeFile(t, filepath.Join(root, "Bundles2", "empty.bundle.bin"), nil)

	l, err := NewLocal(root)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, l.Close()) })

	assert.Equal(t, filepath.Join(root, "Bundles2"), l.Dir())

	ctx := context.Background()
	got, err := l.Fetch(ctx, "Folders/data.bundle.bin", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), got)

	got, err = l.Fetch(ctx, "Folders/data.bundle.bin", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got)

	_, err = l.Fetch(ctx, "Folders/data.bundle.bin", 8, 3)
	require.ErrorIs(t, err, ErrRangeUnsatisfiable)

	_, err = l.Fetch(ctx, "missing.bundle.bin", 0, 1)
	require.ErrorIs(t, err, ErrNotFound)

	got, err = l.Fetch(ctx, "empty.bundle.bin", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocalWithoutBundles2(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "_.index.bin"), []byte("index"))

	l, err := NewLocal(root)
	require.NoError(t, err)
	defer l.Close()

	got, err := l.Fetch(context.Background(), IndexFileName, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("index"), got)
}

func TestLocalMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrIO)
}

func TestLocalClosed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bundle.bin"), []byte("abc"))

	l, err := NewLocal(root)
	require.NoError(t, err)
	_, err = l.Fetch(context.Background(), "a.bundle.bin", 0, 1)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Fetch(context.Background(), "a.bundle.bin", 0, 1)
	require.ErrorIs(t, err, ErrIO)
}

func TestMemoryFetch(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{"a": []byte("hello"), "b": []byte("world")}
	m := NewMemory(files)
	delete(files, "b")

	ctx := context.Background()
	got, err := m.Fetch(ctx, "b", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("orl"), got)

	_, err = m.Fetch(ctx, "a", 4, 2)
	require.ErrorIs(t, err, ErrRangeUnsatisfiable)

	_, err = m.Fetch(ctx, "c", 0, 1)
	require.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Fetch(cancelled, "a", 0, 1)
	require.ErrorIs(t, err, context.Canceled)
}
