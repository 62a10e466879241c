package cryptree

import (
	"encoding/binary"
	"fmt"
)

// Ciphertext length multiples. Component 2 leaks payload size only at 4096
// byte granularity.
const (
	BodyMultiple = 4096
	TailMultiple = 16
)

const lengthPrefixSize = 4

// paddedSize returns the plaintext length for an n-byte payload such that
// the sealed component is a multiple of multiple.
func paddedSize(n, multiple int) int {
	total := n + lengthPrefixSize + Overhead
	if r := total % multiple; r != 0 {
		total += multiple - r
	}
	return total - Overhead
}

// pad frames payload as u32 length || payload || zero padding.
func pad(payload []byte, multiple int) []byte {
	out := make([]byte, paddedSize(len(payload), multiple))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[lengthPrefixSize:], payload)
	return out
}

// unpad reverses pad. The padding must be all zero.
func unpad(plain []byte) ([]byte, error) {
	if len(plain) < lengthPrefixSize {
		return nil, fmt.Errorf("%w: padded payload too short", ErrMalformedChunk)
	}
	n := binary.BigEndian.Uint32(plain)
	rest := plain[lengthPrefixSize:]
	if uint64(n) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: payload length %d exceeds %d", ErrMalformedChunk, n, len(rest))
	}
	for _, b := range rest[n:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: non-zero padding", ErrMalformedChunk)
		}
	}
	return rest[:n], nil
}
