package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"art/**/*.dds", "art/x.dds", true},
		{"art/**/*.dds", "art/a/b/x.dds", true},
		{"art/**/*.dds", "Art/2DItems/Currency/CurrencyRerollRare.dds", true},
		{"art/**/*.dds", "art/x.png", false},
		{"art/**/*.dds", "data/art/x.dds", false},
		{"art/**/*.dds", "Art/x.DDS", true},
		{"art/**/*.dds", "art/a.dds.bak", false},
		{"art/**/x/*.dds", "art/x/a.dds", true},
		{"art/**/x/*.dds", "art/a/b/x/a.dds", true},
		{"art/**/x/*.dds", "art/a/b/a.dds", false},
		{"a/**/b/**/c.txt", "a/b/c.txt", true},
		{"a/**/b/**/c.txt", "a/1/b/2/3/c.txt", true},
		{"a/**/b/**/c.txt", "a/1/c.txt", false},
		{"**/art/**/*.dds", "art/x.dds", true},
		{"**/art/**/*.dds", "minimap/art/a/x.dds", true},
		{"art/*.dds", "art/x.dds", true},
		{"art/*.dds", "art/a/x.dds", false},
		{"**/*.datc64", "data/mods.datc64", true},
		{"**/*.datc64", "mods.datc64", true},
		{"Data/*.DATC64", "data/mods.datc64", true},
		{"data/mods.datc6?", "data/mods.datc64", true},
		{"data/{mods,stats}.datc64", "data/stats.datc64", true},
		{"**", "anything/at/all.txt", true},
		{"", "anything/at/all.txt", true},
		{"*", "root.txt", true},
		{"*", "dir/nested.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			m, err := NewMatcher(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}

func TestMatcherInvalid(t *testing.T) {
	t.Parallel()

	_, err := NewMatcher("art/[a-")
	require.Error(t, err)
}

func TestExpandDoubleStar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"art/*.dds"}, expandDoubleStar("art/*.dds"))
	assert.Equal(t, []string{"art/**/*.dds", "art/*.dds"}, expandDoubleStar("art/**/*.dds"))
	assert.ElementsMatch(t, []string{
		"a/**/b/**/c", "a/b/**/c", "a/**/b/c", "a/b/c",
	}, expandDoubleStar("a/**/b/**/c"))
}
