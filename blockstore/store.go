// Package blockstore provides the content-addressed storage that encrypted
// cryptree blocks are persisted through.
//
// A Store maps a Key to an opaque ciphertext block. It knows nothing about
// encryption, node structure or versioning.
package blockstore

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// MaxBlockSize bounds a single block accepted by the network transport (64 MiB).
const MaxBlockSize = 64 << 20

// Store is the two-operation contract every backend satisfies.
//
// Get reports ok == false with a nil error when key was never inserted; that
// is a normal outcome, not a failure. A non-nil error is reserved for backend
// faults (disk, network). Insert overwrites any prior block under key.
//
// A Get must observe every Insert that happened before it.
type Store interface {
	// Get returns the raw block stored under key.
	Get(key Key) (block []byte, ok bool, err error)

	// Insert stores block under key.
	Insert(key Key, block []byte) error
}

// MemStore is the in-memory reference Store. Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	blocks map[Key][]byte
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[Key][]byte)}
}

// Get returns a copy of the block stored under key.
func (s *MemStore) Get(key Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocks[key]
	if !ok {
		return nil, false, nil
	}
	return copyBytes(block), true, nil
}

// Insert stores a copy of block under key.
func (s *MemStore) Insert(key Key, block []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[key] = copyBytes(block)
	return nil
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Keys returns every stored key in unspecified order.
func (s *MemStore) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.blocks))
	for k := range s.blocks {
		keys = append(keys, k)
	}
	return keys
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// orDiscard returns log, or a logger that drops everything when log is nil.
func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
