package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DecodePaths decodes one directory record's slice of the path dictionary.
//
// The slice is a stream of little-endian u32 words. A zero word toggles base
// mode; entering base mode clears the list of bases. Any other word n is
// followed by a NUL-terminated fragment and refers to base n-1: when that
// base exists the fragment is appended to it, when n-1 equals the number of
// bases the fragment stands alone, and anything larger is a forward
// reference and rejected. In base mode the result becomes a new base,
// otherwise it is emitted as a path.
func DecodePaths(data []byte) ([]string, error) {
	var (
		p     int
		base  bool
		bases = make([]string, 0, 16)
		out   = make([]string, 0, 64)
	)

	for p < len(data) {
		if len(data)-p < 4 {
			return nil, fmt.Errorf("%w: truncated path word at offset %d", ErrIndexFormat, p)
		}
		n := binary.LittleEndian.Uint32(data[p:])
		p += 4

		if n == 0 {
			base = !base
			if base {
				bases = bases[:0]
			}
			continue
		}

		end := bytes.IndexByte(data[p:], 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated path fragment at offset %d", ErrIndexFormat, p)
		}
		fragment := string(data[p : p+end])
		p += end + 1

		ref := int(n - 1)
		var s string
		switch {
		case ref < len(bases):
			s = bases[ref] + fragment
		case ref == len(bases):
			s = fragment
		default:
			return nil, fmt.Errorf("%w: path fragment %q references base %d of %d", ErrIndexFormat, fragment, ref, len(bases))
		}

		if base {
			bases = append(bases, s)
		} else {
			out = append(out, s)
		}
	}

	return out, nil
}
