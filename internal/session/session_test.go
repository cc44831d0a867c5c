package session

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/exilefiles/internal/bundle"
	"github.com/jchantrell/exilefiles/internal/bundle/bundletest"
	"github.com/jchantrell/exilefiles/internal/config"
	"github.com/jchantrell/exilefiles/internal/source"
)

func archiveFiles() map[string][]byte {
	return bundletest.NewBuilder().
		AddBundle("Folders/data",
			bundletest.File{Path: "Data/BaseItemTypes.datc64", Data: []byte("base item types")},
			bundletest.File{Path: "Data/Mods.datc64", Data: []byte("mods")},
		).
		AddBundle("Folders/audio",
			bundletest.File{Path: "Audio/Music/Login.ogg", Data: []byte("ogg")},
		).
		Build()
}

func writeInstall(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range archiveFiles() {
		path := filepath.Join(root, "Bundles2", filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return root
}

func localConfig(root string) *config.Config {
	return &config.Config{
		Patch:      "3.25.3.4",
		Source:     config.SourceLocal,
		InstallDir: root,
		Workers:    2,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := Open(ctx, localConfig(writeInstall(t)))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.Equal(t, "3.25.3.4", a.Version)
	assert.Len(t, a.Index.Bundles, 2)
	assert.Equal(t, 3, a.Table.Len())
	assert.Equal(t, bundle.HashMurmur, a.Index.Hash)

	e, err := a.Table.Lookup("Data/Mods.datc64")
	require.NoError(t, err)
	got, err := a.Reader.ReadEntry(ctx, e.Entry)
	require.NoError(t, err)
	assert.Equal(t, []byte("mods"), got)

	data, err := fs.ReadFile(a.FS(ctx), "audio/music/login.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("ogg"), data)
}

func TestOpenLocalMissingInstall(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), localConfig(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestOpenLocalWithoutIndex(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Bundles2"), 0o755))

	_, err := Open(context.Background(), localConfig(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestOpenRemote(t *testing.T) {
	t.Parallel()

	files := archiveFiles()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		name, ok := strings.CutPrefix(r.URL.Path, "/4.1.0.2/Bundles2/")
		data, found := files[name]
		if !ok || !found {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, name, time.Time{}, strings.NewReader(string(data)))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Patch:    "4.1.0.2",
		Source:   config.SourceRemote,
		CacheDir: t.TempDir(),
		CDNURL:   srv.URL,
		Retries:  1,
		Workers:  2,
	}

	ctx := context.Background()
	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.Equal(t, "4.1.0.2", a.Version)
	assert.FileExists(t, filepath.Join(cfg.CacheDir, "4.1.0.2", "_.index.bin"))

	data, err := a.FS(ctx).ReadFile("data/baseitemtypes.datc64")
	require.NoError(t, err)
	assert.Equal(t, []byte("base item types"), data)
	assert.Positive(t, requests.Load())
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	src, err := NewSource(&config.Config{Patch: "2", Source: config.SourceRemote, CacheDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &source.Remote{}, src)
	assert.NoError(t, src.Close())

	_, err = NewSource(&config.Config{Patch: "1", Source: "steam"})
	assert.Error(t, err)
}
