package bundle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jchantrell/exilefiles/internal/bundle"
)

func TestHashPathGolden(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		murmur uint64
		fnv    uint64
	}{
		{"", 0xf42a94e69cff42fe, 0x07e47507b4a92e53},
		{"art", 0x9a6c952113c442aa, 0x829b58b65160c488},
		{"data/mods.datc64", 0xfa959799798303b7, 0x01ac1c6ef9a2701d},
		{"art/2ditems/currency/currencyrerollrare.dds", 0xdcd072f25efa107c, 0x0dcf3b1efc377d64},
		{"metadata/items/gems/skillgemfireball.ot", 0x16283a0e68fd4229, 0x7bbc9989a46ed1a3},
		{"a/b/c.txt", 0x2ad22b60e91428dd, 0x262f97901e45fadb},
		{"a/b/d.txt", 0xe9a89b14f30a8ac4, 0xd7421fb8b592666a},
		{"abcdefgh", 0xc0fd347668f580d7, 0xba9c20aa239638bb},
		{"abcdefghi", 0x91d17ea59ead7c80, 0x72836719350927aa},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.murmur, bundle.HashPath(tt.path), "murmur")
			assert.Equal(t, tt.fnv, bundle.FNVHashPath(tt.path), "fnv")
		})
	}
}

func TestHashPathNormalizes(t *testing.T) {
	t.Parallel()

	want := bundle.HashPath("art/2ditems/currency/currencyrerollrare.dds")
	for _, p := range []string{
		"Art/2DItems/Currency/CurrencyRerollRare.dds",
		`Art\2DItems\Currency\CurrencyRerollRare.dds`,
		"art/2ditems/currency/currencyrerollrare.dds/",
	} {
		assert.Equal(t, want, bundle.HashPath(p), p)
	}
	assert.Equal(t, bundle.HashPath("art"), bundle.HashPath("Art"))
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "data/mods.datc64", bundle.NormalizePath(`Data\Mods.datc64`))
	assert.Equal(t, "art", bundle.NormalizePath("Art/"))
	assert.Equal(t, "ünïcode", bundle.NormalizePath("ünïcode"))
}

func TestHashAlgorithm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bundle.HashPath("a/b/c.txt"), bundle.HashMurmur.Hash("a/b/c.txt"))
	assert.Equal(t, bundle.FNVHashPath("a/b/c.txt"), bundle.HashFNV.Hash("a/b/c.txt"))
	assert.Equal(t, "murmur64a", bundle.HashMurmur.String())
	assert.Equal(t, "fnv1a64", bundle.HashFNV.String())
}
