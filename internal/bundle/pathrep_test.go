package bundle_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/exilefiles/internal/bundle"
	"github.com/jchantrell/exilefiles/internal/bundle/bundletest"
)

// pathStream assembles a raw dictionary slice from words and fragments.
type pathStream []byte

func (s pathStream) word(n uint32) pathStream {
	return binary.LittleEndian.AppendUint32(s, n)
}

func (s pathStream) ref(n uint32, fragment string) pathStream {
	s = s.word(n)
	s = append(s, fragment...)
	return append(s, 0)
}

func TestDecodePathsSharedBase(t *testing.T) {
	t.Parallel()

	data := pathStream{}.
		word(0).
		ref(1, "a/b/").
		word(0).
		ref(1, "c.txt").
		ref(1, "d.txt")

	paths, err := bundle.DecodePaths(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c.txt", "a/b/d.txt"}, paths)
}

func TestDecodePathsChainedBases(t *testing.T) {
	t.Parallel()

	data := pathStream{}.
		word(0).
		ref(1, "art/").
		ref(1, "2ditems/").
		ref(3, "textures/").
		word(0).
		ref(2, "a.dds").
		ref(3, "b.dds").
		ref(4, "literal.txt")

	paths, err := bundle.DecodePaths(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"art/2ditems/a.dds", "textures/b.dds", "literal.txt"}, paths)
}

func TestDecodePathsBaseModeResets(t *testing.T) {
	t.Parallel()

	data := pathStream{}.
		word(0).ref(1, "x/").word(0).
		ref(1, "1").
		word(0).ref(1, "y/").word(0).
		ref(1, "2")

	paths, err := bundle.DecodePaths(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"x/1", "y/2"}, paths)
}

func TestDecodePathsRejectsForwardReference(t *testing.T) {
	t.Parallel()

	data := pathStream{}.
		word(0).ref(1, "a/").word(0).
		ref(3, "c.txt")

	_, err := bundle.DecodePaths(data)
	require.ErrorIs(t, err, bundle.ErrIndexFormat)
}

func TestDecodePathsRejectsTruncation(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"short word":            {1, 0},
		"unterminated fragment": append(pathStream{}.word(1), "abc"...),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := bundle.DecodePaths(data)
			require.ErrorIs(t, err, bundle.ErrIndexFormat)
		})
	}
}

func TestDecodePathsEmpty(t *testing.T) {
	t.Parallel()

	paths, err := bundle.DecodePaths(nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestEncodePathsRoundTrip(t *testing.T) {
	t.Parallel()

	want := []string{
		"Art/2DItems/Currency/CurrencyRerollRare.dds",
		"Art/2DItems/Currency/CurrencyAddModToRare.dds",
		"Data/Mods.datc64",
		"README.txt",
	}

	paths, err := bundle.DecodePaths(bundletest.EncodePaths(want))
	require.NoError(t, err)
	assert.Equal(t, want, paths)
}
