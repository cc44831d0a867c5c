package extract

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPattern selects every file.
const DefaultPattern = "**"

// Matcher is a case-insensitive path glob. "*" and "?" stay within one path
// segment, "**" spans segments, and "/**/" may also match a single "/", so
// "art/**/*.dds" matches "art/x.dds".
type Matcher struct {
	pattern string
	globs   []glob.Glob
}

// NewMatcher compiles pattern. An empty pattern matches everything.
func NewMatcher(pattern string) (*Matcher, error) {
	p := strings.TrimPrefix(strings.ToLower(pattern), "/")
	if p == "" {
		p = DefaultPattern
	}

	variants := expandDoubleStar(p)
	if rest, ok := strings.CutPrefix(p, "**/"); ok {
		variants = append(variants, expandDoubleStar(rest)...)
	}

	m := &Matcher{pattern: pattern}
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
		}
		m.globs = append(m.globs, g)
	}

	return m, nil
}

// Match reports whether path satisfies the pattern.
func (m *Matcher) Match(path string) bool {
	lower := strings.ToLower(path)
	for _, g := range m.globs {
		if g.Match(lower) {
			return true
		}
	}
	return false
}

func (m *Matcher) String() string {
	return m.pattern
}

// expandDoubleStar returns p plus every variant in which some "/**/"
// segments are collapsed to "/", so each "**" may also match no directory.
func expandDoubleStar(p string) []string {
	i := strings.Index(p, "/**/")
	if i < 0 {
		return []string{p}
	}

	head, tail := p[:i], p[i+len("/**/"):]
	var out []string
	for _, rest := range expandDoubleStar(tail) {
		out = append(out, head+"/**/"+rest, head+"/"+rest)
	}
	return out
}
