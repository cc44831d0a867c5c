// Package bundletest builds synthetic Bundles2 content for tests.
package bundletest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/jchantrell/exilefiles/internal/bundle"
)

// DefaultGranularity is a block size small enough to give test bundles
// several blocks.
const DefaultGranularity = 64

// Bundle encodes data as a bundle of stored (uncompressed) blocks.
func Bundle(data []byte, granularity int) []byte {
	return Encode(data, granularity, bundle.CompressorNone, nil)
}

// Encode builds a bundle whose blocks are passed through encode, tagging the
// header with compressor. A nil encode stores blocks as they are.
func Encode(data []byte, granularity int, compressor uint32, encode func(block []byte) []byte) []byte {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}

	var blocks [][]byte
	for off := 0; off < len(data); off += granularity {
		end := min(off+granularity, len(data))
		blk := append([]byte(nil), data[off:end]...)
		if encode != nil {
			blk = encode(blk)
		}
		blocks = append(blocks, blk)
	}

	payload := 0
	for _, blk := range blocks {
		payload += len(blk)
	}

	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	w(uint32(len(data)))
	w(uint32(payload + 48 + 4*len(blocks)))
	w(uint32(48 + 4*len(blocks)))
	w(compressor)
	w(uint32(1))
	w(int64(len(data)))
	w(int64(payload))
	w(uint32(len(blocks)))
	w(uint32(granularity))
	w([4]uint32{})
	for _, blk := range blocks {
		w(uint32(len(blk)))
	}
	for _, blk := range blocks {
		buf.Write(blk)
	}

	return buf.Bytes()
}

// EncodePaths builds a path dictionary slice that bundle.DecodePaths turns
// back into paths. Each directory prefix becomes a base and every path
// references its directory.
func EncodePaths(paths []string) []byte {
	var buf bytes.Buffer
	word := func(n uint32) { _ = binary.Write(&buf, binary.LittleEndian, n) }
	str := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(0)
	}

	dirs := make(map[string]int)
	var order []string
	for _, p := range paths {
		dir, _ := splitDir(p)
		if _, ok := dirs[dir]; dir != "" && !ok {
			dirs[dir] = len(order)
			order = append(order, dir)
		}
	}

	if len(order) > 0 {
		word(0)
		for i, dir := range order {
			word(uint32(i) + 1)
			str(dir)
		}
		word(0)
	}

	for _, p := range paths {
		dir, name := splitDir(p)
		if dir == "" {
			word(uint32(len(order)) + 1)
			str(p)
			continue
		}
		word(uint32(dirs[dir]) + 1)
		str(name)
	}

	return buf.Bytes()
}

func splitDir(p string) (string, string) {
	i := strings.LastIndexByte(p, '/')
	return p[:i+1], p[i+1:]
}

// File is a file placed in a synthetic bundle.
type File struct {
	Path string
	Data []byte
}

type pendingBundle struct {
	name  string
	files []File
}

// Builder assembles a Bundles2 directory: data bundles plus _.index.bin.
type Builder struct {
	// Granularity is the block size of every bundle.
	Granularity int
	// Hash keys the index. It defaults to bundle.HashPath.
	Hash func(string) uint64
	// Compressor and Encode are applied to data bundles only.
	Compressor uint32
	Encode     func(block []byte) []byte

	bundles []pendingBundle
}

// NewBuilder returns a Builder with DefaultGranularity and stored blocks.
func NewBuilder() *Builder {
	return &Builder{Granularity: DefaultGranularity, Compressor: bundle.CompressorNone}
}

// AddBundle appends a bundle holding files back to back.
func (b *Builder) AddBundle(name string, files ...File) *Builder {
	b.bundles = append(b.bundles, pendingBundle{name: name, files: files})
	return b
}

func (b *Builder) hash(p string) uint64 {
	if b.Hash != nil {
		return b.Hash(p)
	}
	return bundle.HashPath(p)
}

// Build returns the Bundles2 files by name.
func (b *Builder) Build() map[string][]byte {
	out := make(map[string][]byte, len(b.bundles)+1)
	for _, pb := range b.bundles {
		out[bundle.BundleInfo{Name: pb.name}.FileName()] = Encode(payload(pb.files), b.Granularity, b.Compressor, b.Encode)
	}
	out[bundle.IndexFileName] = Bundle(b.IndexPayload(), b.Granularity)
	return out
}

func payload(files []File) []byte {
	var data []byte
	for _, f := range files {
		data = append(data, f.Data...)
	}
	return data
}

// IndexPayload returns the decompressed index. Paths are grouped into one
// directory record per top-level directory, after the root record.
func (b *Builder) IndexPayload() []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	w(uint32(len(b.bundles)))
	for _, pb := range b.bundles {
		w(uint32(len(pb.name)))
		buf.WriteString(pb.name)
		w(uint32(len(payload(pb.files))))
	}

	groups := map[string][]string{"": nil}
	var count int
	for _, pb := range b.bundles {
		count += len(pb.files)
	}
	w(uint32(count))
	for i, pb := range b.bundles {
		off := 0
		for _, f := range pb.files {
			w(b.hash(f.Path))
			w(uint32(i))
			w(uint32(off))
			w(uint32(len(f.Data)))
			off += len(f.Data)

			top, _, found := strings.Cut(f.Path, "/")
			if !found {
				top = ""
			}
			groups[top] = append(groups[top], f.Path)
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var dict bytes.Buffer
	w(uint32(len(names)))
	for _, name := range names {
		slice := EncodePaths(groups[name])
		w(b.hash(name))
		w(uint32(dict.Len()))
		w(uint32(len(slice)))
		w(uint32(len(slice)))
		dict.Write(slice)
	}

	buf.Write(Bundle(dict.Bytes(), b.Granularity))
	return buf.Bytes()
}
