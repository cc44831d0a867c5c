package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/exilefiles/internal/bundle/bundletest"
	"github.com/jchantrell/exilefiles/internal/manifest"
)

func TestExtractCommand(t *testing.T) {
	root := t.TempDir()
	files := bundletest.NewBuilder().
		AddBundle("Folders/data",
			bundletest.File{Path: "Data/Mods.datc64", Data: []byte("mods")},
			bundletest.File{Path: "Data/Stats.datc64", Data: []byte("stats")},
		).
		AddBundle("Folders/art",
			bundletest.File{Path: "Art/Textures/Ground.dds", Data: []byte("dds")},
		).
		Build()
	for name, data := range files {
		path := filepath.Join(root, "Bundles2", filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}

	cfgPath := filepath.Join(t.TempDir(), "exilefiles.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("patch: \"3.25.3.4\"\n"), 0o644))

	out := t.TempDir()
	db := filepath.Join(t.TempDir(), "manifest.db")

	rootCmd.SetArgs([]string{
		"extract", out, "data/*.datc64",
		"--config", cfgPath,
		"--install-dir", root,
		"--manifest", db,
		"--no-progress",
		"--workers", "2",
	})
	require.NoError(t, rootCmd.Execute())

	got, err := os.ReadFile(filepath.Join(out, "Data", "Mods.datc64"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mods"), got)
	assert.FileExists(t, filepath.Join(out, "Data", "Stats.datc64"))
	assert.NoFileExists(t, filepath.Join(out, "Art", "Textures", "Ground.dds"))

	m, err := manifest.Open(context.Background(), manifest.DefaultOptions(db))
	require.NoError(t, err)
	defer m.Close()

	runs, err := m.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Extracted)
	assert.Equal(t, "local", runs[0].Source)
	assert.Equal(t, "3.25.3.4", runs[0].Version)
}
