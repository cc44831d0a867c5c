package bundle

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/exilefiles/internal/source"
)

const (
	// IndexFileName is the index bundle inside Bundles2.
	IndexFileName = source.IndexFileName

	bundleHeadSize = 60
)

type bundleHead struct {
	UncompressedSize             uint32
	TotalPayloadSize             uint32
	HeadPayloadSize              uint32
	Compressor                   uint32
	_                            uint32
	UncompressedSize2            int64
	TotalPayloadSize2            int64
	BlockCount                   uint32
	UncompressedBlockGranularity uint32
	_                            [4]uint32
}

// CompressedBlock locates one block of a bundle payload.
type CompressedBlock struct {
	CompressedOffset int64
	CompressedSize   int64
	UncompressedSize int64
}

// layout is a parsed bundle header and block table.
type layout struct {
	name        string
	size        int64
	granularity int64 // size of each chunk of uncompressed data, usually 256KiB
	compressor  uint32
	blocks      []CompressedBlock
}

// openLayout reads the header and block table of a bundle with two ranged fetches.
func openLayout(ctx context.Context, src source.Source, name string) (*layout, error) {
	head, err := src.Fetch(ctx, name, 0, bundleHeadSize)
	if err != nil {
		return nil, fmt.Errorf("reading bundle head of %s: %w", name, err)
	}

	var bh bundleHead
	if err := binary.Read(bytes.NewReader(head), binary.LittleEndian, &bh); err != nil {
		return nil, fmt.Errorf("%w: decoding bundle head of %s: %v", ErrDecompression, name, err)
	}

	if err := checkHead(name, bh); err != nil {
		return nil, err
	}

	table, err := src.Fetch(ctx, name, bundleHeadSize, int64(bh.BlockCount)*4)
	if err != nil {
		return nil, fmt.Errorf("reading block table of %s (BlockCount=%d): %w", name, bh.BlockCount, err)
	}

	return parseLayout(name, bh, table)
}

// maxBlocks bounds the block table size accepted from a header.
const maxBlocks = 1 << 20

func checkHead(name string, bh bundleHead) error {
	size, granularity := bh.UncompressedSize2, int64(bh.UncompressedBlockGranularity)
	switch {
	case granularity == 0:
		return fmt.Errorf("%w: %s has zero block granularity", ErrDecompression, name)
	case size < 0:
		return fmt.Errorf("%w: %s has negative size %d", ErrDecompression, name, size)
	case bh.BlockCount > maxBlocks:
		return fmt.Errorf("%w: %s claims %d blocks", ErrDecompression, name, bh.BlockCount)
	}

	if expected := (size + granularity - 1) / granularity; expected != int64(bh.BlockCount) {
		return fmt.Errorf(
			"%w: %s has %d blocks of size %d for %d bytes",
			ErrDecompression, name, bh.BlockCount, granularity, size,
		)
	}

	return nil
}

func parseLayout(name string, bh bundleHead, table []byte) (*layout, error) {
	if err := checkHead(name, bh); err != nil {
		return nil, err
	}
	if len(table) != int(bh.BlockCount)*4 {
		return nil, fmt.Errorf("%w: %s block table is %d bytes, want %d", ErrDecompression, name, len(table), bh.BlockCount*4)
	}

	l := &layout{
		name:        name,
		size:        bh.UncompressedSize2,
		granularity: int64(bh.UncompressedBlockGranularity),
		compressor:  bh.Compressor,
		blocks:      make([]CompressedBlock, bh.BlockCount),
	}

	p := int64(bundleHeadSize + len(table))
	for i := range l.blocks {
		sz := int64(binary.LittleEndian.Uint32(table[i*4:]))
		raw := l.granularity
		if i == len(l.blocks)-1 {
			raw = l.size - int64(i)*l.granularity
		}
		l.blocks[i] = CompressedBlock{
			CompressedOffset: p,
			CompressedSize:   sz,
			UncompressedSize: raw,
		}
		p += sz
	}

	return l, nil
}

// blockSpan returns the first and last block covering [offset, offset+length).
func (l *layout) blockSpan(offset, length int64) (int, int) {
	return int(offset / l.granularity), int((offset + length - 1) / l.granularity)
}

// decodeBlock fetches and decompresses block i.
func (l *layout) decodeBlock(ctx context.Context, src source.Source, codecs codecSet, i int) ([]byte, int64, error) {
	blk := l.blocks[i]

	compressed, err := src.Fetch(ctx, l.name, blk.CompressedOffset, blk.CompressedSize)
	if err != nil {
		return nil, 0, fmt.Errorf("reading block %d of %s: %w", i, l.name, err)
	}

	out := make([]byte, blk.UncompressedSize)
	if err := codecs.decompress(l.compressor, compressed, out); err != nil {
		return nil, blk.CompressedSize, fmt.Errorf("%w: block %d of %s: %v", ErrDecompression, i, l.name, err)
	}

	return out, blk.CompressedSize, nil
}

// Decompress reads and decompresses a whole bundle. It is used for the index
// and the path dictionary, which are read once and not cached.
func Decompress(ctx context.Context, src source.Source, name string, opts ...Option) ([]byte, error) {
	o := newOptions(opts)

	l, err := openLayout(ctx, src, name)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, l.size)
	for i := range l.blocks {
		block, _, err := l.decodeBlock(ctx, src, o.codecs, i)
		if err != nil {
			return nil, err
		}
		data = append(data, block...)
	}

	return data, nil
}

// DecompressBytes decompresses a bundle held in memory.
func DecompressBytes(ctx context.Context, data []byte, opts ...Option) ([]byte, error) {
	const name = "embedded.bundle.bin"
	return Decompress(ctx, source.NewMemory(map[string][]byte{name: data}), name, opts...)
}
