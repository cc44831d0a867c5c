package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// PathEntry pairs a reconstructed path with its file entry.
type PathEntry struct {
	Path  string
	Entry FileEntry
}

// PathTable maps the paths recovered from the dictionary to file entries.
// It is immutable once built and safe for concurrent use.
type PathTable struct {
	hash    HashAlgorithm
	byHash  map[uint64]int
	entries []PathEntry

	// Unresolved counts dictionary paths with no file entry.
	Unresolved int
	// Unnamed counts file entries no dictionary path hashed to.
	Unnamed int
}

// BuildPathTable decompresses the index's path dictionary, decodes every
// directory record and keeps the paths whose hash names a file.
func BuildPathTable(ctx context.Context, idx *Index, opts ...Option) (*PathTable, error) {
	var dict []byte
	if len(idx.Directories) > 0 {
		var err error
		dict, err = DecompressBytes(ctx, idx.Dictionary, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: reading path dictionary: %w", ErrIndexFormat, err)
		}
	}

	t := &PathTable{
		hash:    idx.Hash,
		byHash:  make(map[uint64]int, len(idx.Files)),
		entries: make([]PathEntry, 0, len(idx.Files)),
	}

	for _, dir := range idx.Directories {
		end := uint64(dir.Offset) + uint64(dir.Size)
		if end > uint64(len(dict)) {
			return nil, fmt.Errorf("%w: directory %016x spans %d-%d of %d dictionary bytes",
				ErrIndexFormat, dir.PathHash, dir.Offset, end, len(dict))
		}

		paths, err := DecodePaths(dict[dir.Offset:end])
		if err != nil {
			return nil, fmt.Errorf("decoding directory %016x: %w", dir.PathHash, err)
		}

		for _, p := range paths {
			h := idx.Hash.Hash(p)
			e, ok := idx.Files[h]
			if !ok {
				t.Unresolved++
				continue
			}
			if _, seen := t.byHash[h]; seen {
				continue
			}
			t.byHash[h] = len(t.entries)
			t.entries = append(t.entries, PathEntry{Path: p, Entry: e})
		}
	}

	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].Path < t.entries[j].Path
	})
	for i, e := range t.entries {
		t.byHash[e.Entry.PathHash] = i
	}

	t.Unnamed = len(idx.Files) - len(t.entries)
	if t.Unresolved > 0 || t.Unnamed > 0 {
		slog.Debug("Path table incomplete", "unresolved_paths", t.Unresolved, "unnamed_files", t.Unnamed)
	}

	return t, nil
}

// Len returns the number of named files.
func (t *PathTable) Len() int {
	return len(t.entries)
}

// Entries returns every named file sorted by path. The slice must not be modified.
func (t *PathTable) Entries() []PathEntry {
	return t.entries
}

// Lookup resolves a path by hash, so case and separator style do not matter.
func (t *PathTable) Lookup(p string) (PathEntry, error) {
	i, ok := t.byHash[t.hash.Hash(p)]
	if !ok {
		return PathEntry{}, fmt.Errorf("%w: %s", ErrHashNotFound, p)
	}
	return t.entries[i], nil
}

// Match returns the entries whose path satisfies match, in path order.
func (t *PathTable) Match(match func(string) bool) []PathEntry {
	var out []PathEntry
	for _, e := range t.entries {
		if match(e.Path) {
			out = append(out, e)
		}
	}
	return out
}
