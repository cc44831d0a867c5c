package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Patch
		latest  bool
		wantErr bool
	}{
		{in: "1", want: Patch{Game: 1}, latest: true},
		{in: "2", want: Patch{Game: 2}, latest: true},
		{in: "3.25.3.4", want: Patch{Game: 1, Version: "3.25.3.4"}},
		{in: "4.1.0.2", want: Patch{Game: 2, Version: "4.1.0.2"}},
		{in: "", wantErr: true},
		{in: "3", wantErr: true},
		{in: "5.0.0", wantErr: true},
		{in: "3.x.1", wantErr: true},
		{in: "latest", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePatch(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.latest, got.Latest())
			assert.Equal(t, tt.in, got.String())
			assert.Equal(t, got.Game+2, got.Major())
		})
	}
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"3.21.2", "3.21.2", 0},
		{"3.21.2.0", "3.21.2", 0},
		{"3.21.1.9", "3.21.2", -1},
		{"3.25.0", "3.21.2", 1},
		{"4.0.0.1", "3.26.0.11", 1},
	}

	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("3", "3.1")
	assert.Error(t, err)
}

func TestIsModernPoE(t *testing.T) {
	t.Parallel()

	modern, err := IsModernPoE("3.20.1.5")
	require.NoError(t, err)
	assert.False(t, modern)

	modern, err = IsModernPoE("3.21.2.0")
	require.NoError(t, err)
	assert.True(t, modern)

	modern, err = IsModernPoE("4.1.0.2")
	require.NoError(t, err)
	assert.True(t, modern)
}
