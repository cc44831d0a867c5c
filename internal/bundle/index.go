package bundle

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/jchantrell/exilefiles/internal/source"
	"github.com/jchantrell/exilefiles/internal/utils"
)

// BundleInfo names a bundle and its uncompressed payload size.
type BundleInfo struct {
	Name             string
	UncompressedSize uint64
}

// FileName returns the bundle's file name inside Bundles2.
func (b BundleInfo) FileName() string {
	return b.Name + ".bundle.bin"
}

// FileEntry locates a file inside a bundle's uncompressed payload.
type FileEntry struct {
	PathHash    uint64
	BundleIndex uint32
	Offset      uint64
	Size        uint32
}

// DirectoryRecord is a directory's slice of the decompressed path dictionary.
type DirectoryRecord struct {
	PathHash      uint64
	Offset        uint32
	Size          uint32
	RecursiveSize uint32
}

// Index is a parsed _.index.bin.
type Index struct {
	Bundles     []BundleInfo
	Files       map[uint64]FileEntry
	Directories []DirectoryRecord

	// Dictionary is the path dictionary bundle, still compressed.
	Dictionary []byte

	// Hash is the algorithm the index keys its files by.
	Hash HashAlgorithm
}

// indexReader is a bounds-checked little-endian cursor.
type indexReader struct {
	data []byte
	p    int
}

func (r *indexReader) need(n int, what string) error {
	if n < 0 || len(r.data)-r.p < n {
		return fmt.Errorf("%w: reading %s at offset %d: need %d bytes, have %d", ErrIndexFormat, what, r.p, n, len(r.data)-r.p)
	}
	return nil
}

func (r *indexReader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.p:])
	r.p += 4
	return v, nil
}

func (r *indexReader) u64(what string) (uint64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.p:])
	r.p += 8
	return v, nil
}

func (r *indexReader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	v := r.data[r.p : r.p+n]
	r.p += n
	return v, nil
}

// count reads a record count and checks that the records fit in the rest of
// the data, so a corrupt count cannot trigger a huge allocation.
func (r *indexReader) count(recordSize int, what string) (int, error) {
	n, err := r.u32(what + " count")
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(recordSize) > uint64(len(r.data)-r.p) {
		return 0, fmt.Errorf("%w: %d %s records do not fit in %d bytes", ErrIndexFormat, n, what, len(r.data)-r.p)
	}
	return int(n), nil
}

const (
	fileRecordSize      = 20
	directoryRecordSize = 20
	minBundleRecordSize = 8
)

// ParseIndex parses the decompressed payload of _.index.bin.
func ParseIndex(data []byte) (*Index, error) {
	r := &indexReader{data: data}

	bundleCount, err := r.count(minBundleRecordSize, "bundle")
	if err != nil {
		return nil, err
	}

	bundles := make([]BundleInfo, bundleCount)
	for i := range bundles {
		nameLen, err := r.u32("bundle name length")
		if err != nil {
			return nil, err
		}
		name, err := r.bytes(int(nameLen), "bundle name")
		if err != nil {
			return nil, err
		}
		size, err := r.u32("bundle size")
		if err != nil {
			return nil, err
		}
		bundles[i] = BundleInfo{Name: string(name), UncompressedSize: uint64(size)}
	}

	fileCount, err := r.count(fileRecordSize, "file")
	if err != nil {
		return nil, err
	}

	files := make(map[uint64]FileEntry, fileCount)
	for i := 0; i < fileCount; i++ {
		rec, _ := r.bytes(fileRecordSize, "file record")
		e := FileEntry{
			PathHash:    binary.LittleEndian.Uint64(rec[0:]),
			BundleIndex: binary.LittleEndian.Uint32(rec[8:]),
			Offset:      uint64(binary.LittleEndian.Uint32(rec[12:])),
			Size:        binary.LittleEndian.Uint32(rec[16:]),
		}

		if int(e.BundleIndex) >= len(bundles) {
			return nil, fmt.Errorf("%w: file %016x references bundle %d of %d", ErrIndexFormat, e.PathHash, e.BundleIndex, len(bundles))
		}
		if b := bundles[e.BundleIndex]; e.Offset+uint64(e.Size) > b.UncompressedSize {
			return nil, fmt.Errorf("%w: file %016x spans %d-%d beyond %s (%d bytes)",
				ErrIndexFormat, e.PathHash, e.Offset, e.Offset+uint64(e.Size), b.Name, b.UncompressedSize)
		}

		if _, exists := files[e.PathHash]; exists {
			slog.Warn("Duplicate file hash in index", "hash", fmt.Sprintf("%016x", e.PathHash))
		}
		files[e.PathHash] = e
	}

	dirCount, err := r.count(directoryRecordSize, "directory")
	if err != nil {
		return nil, err
	}

	dirs := make([]DirectoryRecord, dirCount)
	for i := range dirs {
		rec, _ := r.bytes(directoryRecordSize, "directory record")
		dirs[i] = DirectoryRecord{
			PathHash:      binary.LittleEndian.Uint64(rec[0:]),
			Offset:        binary.LittleEndian.Uint32(rec[8:]),
			Size:          binary.LittleEndian.Uint32(rec[12:]),
			RecursiveSize: binary.LittleEndian.Uint32(rec[16:]),
		}
	}

	idx := &Index{
		Bundles:     bundles,
		Files:       files,
		Directories: dirs,
		Dictionary:  data[r.p:],
	}

	if len(dirs) > 0 {
		if algo, ok := detectHashAlgorithm(dirs[0].PathHash); ok {
			idx.Hash = algo
		} else {
			return nil, fmt.Errorf("%w: unrecognized root directory hash %016x", ErrIndexFormat, dirs[0].PathHash)
		}
	}

	return idx, nil
}

// LoadIndex fetches, decompresses and parses _.index.bin from src.
func LoadIndex(ctx context.Context, src source.Source, opts ...Option) (*Index, error) {
	o := newOptions(opts)

	data, err := Decompress(ctx, src, IndexFileName, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading index bundle: %w", err)
	}

	idx, err := ParseIndex(data)
	if err != nil {
		return nil, err
	}

	if len(idx.Directories) == 0 && o.version != "" {
		if modern, err := utils.IsModernPoE(o.version); err == nil && !modern {
			idx.Hash = HashFNV
		}
	}

	slog.Debug("Index parsed",
		"bundles", len(idx.Bundles),
		"files", len(idx.Files),
		"directories", len(idx.Directories),
		"hash", idx.Hash.String())

	return idx, nil
}
