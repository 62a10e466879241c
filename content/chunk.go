// Package content prepares file data for storage in cryptree file nodes:
// cutting a body into the parts carried by a version's chunk chain, joining
// them back under the content hash, and compression.
package content

import (
	"bytes"
	"crypto/sha256"
	"hash"
)

// DefaultChunkSize is the default body payload of one chunk (1 MiB).
const DefaultChunkSize = 1 << 20

// HashSize is the length of a content hash.
const HashSize = sha256.Size

// Split cuts body into the parts of a chunk chain, each at most size bytes.
// Parts alias body. An empty body yields one empty part: a version always
// has a first chunk.
func Split(body []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(body) == 0 {
		return [][]byte{{}}, nil
	}
	parts := make([][]byte, 0, (len(body)+size-1)/size)
	for len(body) > size {
		parts = append(parts, body[:size:size])
		body = body[size:]
	}
	return append(parts, body), nil
}

// Hash returns the content hash of parts in chain order.
func Hash(parts [][]byte) []byte {
	j := NewJoiner()
	for _, p := range parts {
		j.Add(p)
	}
	return j.Sum()
}

// Joiner reassembles the parts of a chunk chain while hashing them.
type Joiner struct {
	buf bytes.Buffer
	h   hash.Hash
}

// NewJoiner returns an empty Joiner.
func NewJoiner() *Joiner {
	return &Joiner{h: sha256.New()}
}

// Add appends the next part.
func (j *Joiner) Add(part []byte) {
	j.buf.Write(part)
	j.h.Write(part)
}

// Len is the number of bytes added so far.
func (j *Joiner) Len() int { return j.buf.Len() }

// Sum is the content hash of the parts added so far.
func (j *Joiner) Sum() []byte { return j.h.Sum(nil) }

// Join returns the joined body after checking it against want. A nil want
// skips the check.
func (j *Joiner) Join(want []byte) ([]byte, error) {
	if want != nil && !bytes.Equal(j.Sum(), want) {
		return nil, ErrContentHashMismatch
	}
	return j.buf.Bytes(), nil
}
