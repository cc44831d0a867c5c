package bundle

import (
	"fmt"

	"github.com/oriath-net/gooz"
)

// Compressor ids stored in bundle headers.
const (
	CompressorNone      uint32 = 3
	CompressorKraken    uint32 = 8
	CompressorMermaid   uint32 = 9
	CompressorSelkie    uint32 = 11
	CompressorHydra     uint32 = 12
	CompressorLeviathan uint32 = 13
)

// Codec decompresses a single block. dst has exactly the block's
// uncompressed size and must be filled completely.
type Codec interface {
	Decompress(src, dst []byte) error
}

// CodecFunc adapts a function to the Codec interface.
type CodecFunc func(src, dst []byte) error

func (f CodecFunc) Decompress(src, dst []byte) error {
	return f(src, dst)
}

// Oodle decodes the Oodle family (Kraken, Mermaid, Selkie, Leviathan) with gooz.
var Oodle Codec = CodecFunc(func(src, dst []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oodle decoder panicked: %v", r)
		}
	}()

	if _, err := gooz.Decompress(src, dst); err != nil {
		return fmt.Errorf("oodle: %w", err)
	}
	return nil
})

// Stored copies uncompressed blocks.
var Stored Codec = CodecFunc(func(src, dst []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("stored block is %d bytes, want %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
})

// codecSet maps compressor ids to codecs. Ids without an entry use Oodle,
// since every compressor the game ships besides None is an Oodle format.
type codecSet map[uint32]Codec

func defaultCodecs() codecSet {
	return codecSet{
		CompressorNone:      Stored,
		CompressorKraken:    Oodle,
		CompressorMermaid:   Oodle,
		CompressorSelkie:    Oodle,
		CompressorHydra:     Oodle,
		CompressorLeviathan: Oodle,
	}
}

func (cs codecSet) decompress(compressor uint32, src, dst []byte) error {
	c, ok := cs[compressor]
	if !ok {
		c = Oodle
	}
	return c.Decompress(src, dst)
}
