package bundle

import "errors"

var (
	// ErrIndexFormat reports a malformed index or path dictionary. The index
	// cannot be trusted once this is returned, so callers abort the run.
	ErrIndexFormat = errors.New("malformed bundle index")

	// ErrHashNotFound reports a path whose hash is absent from the index.
	ErrHashNotFound = errors.New("path not found in index")

	// ErrDecompression reports a block that failed to decompress or a bundle
	// whose header and block table disagree.
	ErrDecompression = errors.New("bundle decompression failed")

	// ErrOutOfBounds reports a read past the end of a bundle's payload.
	ErrOutOfBounds = errors.New("read outside bundle bounds")
)
