package bundle

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// HashAlgorithm selects how an index hashes its paths.
type HashAlgorithm int

const (
	// HashMurmur is MurmurHash64A, used by indexes from 3.21.2 onwards.
	HashMurmur HashAlgorithm = iota
	// HashFNV is FNV-1a over the path plus "++", used by older indexes.
	HashFNV
)

const murmurSeed = 0x1337b33f

// Hashes of the empty path, which is what the root directory record of an
// index is keyed by. They tell the two algorithms apart.
const (
	murmurRootHash = 0xf42a94e69cff42fe
	fnvRootHash    = 0x07e47507b4a92e53
)

func (a HashAlgorithm) String() string {
	switch a {
	case HashMurmur:
		return "murmur64a"
	case HashFNV:
		return "fnv1a64"
	default:
		return fmt.Sprintf("HashAlgorithm(%d)", int(a))
	}
}

// Hash computes the path hash of p with this algorithm.
func (a HashAlgorithm) Hash(p string) uint64 {
	if a == HashFNV {
		return FNVHashPath(p)
	}
	return HashPath(p)
}

// NormalizePath converts p to the canonical form that is hashed: forward
// slashes, ASCII lower case, and no trailing separator or NUL.
func NormalizePath(p string) string {
	b := []byte(p)
	for i, c := range b {
		switch {
		case c == '\\':
			b[i] = '/'
		case 'A' <= c && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
	}
	return strings.TrimRight(string(b), "/\x00")
}

// MurmurHash64A implements the 64-bit MurmurHash2 algorithm as used by modern PoE (≥3.21.2)
// Reference: https://github.com/poe-tool-dev/poe-dat-viewer/blob/main/lib/src/utils/murmur2.ts
func MurmurHash64A(data []byte, seed uint64) uint64 {
	const (
		m = 0xc6a4a7935bd1e995
		r = 47
	)

	h := seed ^ (uint64(len(data)) * m)

	tail := len(data) &^ 7
	for i := 0; i < tail; i += 8 {
		k := binary.LittleEndian.Uint64(data[i:])

		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m
	}

	if rest := data[tail:]; len(rest) > 0 {
		for i := len(rest) - 1; i >= 0; i-- {
			h ^= uint64(rest[i]) << (8 * i)
		}
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}

// HashPath computes the MurmurHash64A of the normalized path with seed 0x1337b33f
func HashPath(p string) uint64 {
	return MurmurHash64A([]byte(NormalizePath(p)), murmurSeed)
}

// FNVHashPath computes FNV-1a hash with "++" suffix for legacy PoE (≤3.21.2)
func FNVHashPath(p string) uint64 {
	const (
		fnvBasis = uint64(0xcbf29ce484222325)
		fnvPrime = uint64(0x100000001b3)
	)

	hash := fnvBasis
	for _, b := range []byte(NormalizePath(p) + "++") {
		hash ^= uint64(b)
		hash *= fnvPrime
	}

	return hash
}

// detectHashAlgorithm identifies the algorithm from the hash of an index's
// root directory record.
func detectHashAlgorithm(rootHash uint64) (HashAlgorithm, bool) {
	switch rootHash {
	case murmurRootHash:
		return HashMurmur, true
	case fnvRootHash:
		return HashFNV, true
	}
	return HashMurmur, false
}
