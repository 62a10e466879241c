package content

import "errors"

var (
	// ErrUnsupportedCompression indicates an unknown compression scheme.
	ErrUnsupportedCompression = errors.New("content: unsupported compression scheme")

	// ErrContentHashMismatch indicates joined chunk parts do not match the content hash.
	ErrContentHashMismatch = errors.New("content: content hash mismatch")

	// ErrDecompressedTooLarge indicates decompressed data exceeds the safety limit.
	ErrDecompressedTooLarge = errors.New("content: decompressed data exceeds maximum size")

	// ErrInvalidChunkSize indicates the chunk size is not a positive integer.
	ErrInvalidChunkSize = errors.New("content: chunk size must be positive")

	// ErrCorrupt indicates compressed input could not be decoded.
	ErrCorrupt = errors.New("content: corrupt compressed data")
)
