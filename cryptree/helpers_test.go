package cryptree

import (
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/cryptree-go/blockstore"
	"github.com/bitfsorg/cryptree-go/sequencer"
)

// testClock is the modification time every test writer records.
var testClock = time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

// newTestWriter returns a writer for user 1, write space 1 over a fresh store.
func newTestWriter(t *testing.T, opts ...Option) (*Writer, *blockstore.MemStore) {
	t.Helper()
	store := blockstore.NewMemStore()
	w := newTestWriterOn(t, store, sequencer.NewMemSequencer(nil), 1, 1, opts...)
	return w, store
}

func newTestWriterOn(t *testing.T, store blockstore.Store, alloc VersionAllocator, user uint32, space uint16, opts ...Option) *Writer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testClock })}, opts...)
	w, err := NewWriter(store, alloc, user, space, opts...)
	require.NoError(t, err)
	return w
}

func testKeys(t *testing.T) nodeKeys {
	t.Helper()
	keys, err := newNodeKeys()
	require.NoError(t, err)
	return keys
}

func testSecretKey(t *testing.T) SecretKey {
	t.Helper()
	k, err := NewSecretKey()
	require.NoError(t, err)
	return k
}

func testSigner(t *testing.T) *ec.PrivateKey {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func loc(v uint32) blockstore.Key { return blockstore.NewKey(1, 1, 1, v) }

// insertChunk encodes p and stores it at p.location.
func insertChunk(t *testing.T, store blockstore.Store, p chunkParams) []byte {
	t.Helper()
	block, err := encodeChunk(p)
	require.NoError(t, err)
	require.NoError(t, store.Insert(p.location, block))
	return block
}

// fixedAllocator always returns the same version_id.
type fixedAllocator uint32

func (f fixedAllocator) Next(uint32, uint16) (uint32, error) { return uint32(f), nil }

// scriptedAllocator returns ids in order, repeating the last one once the
// script runs out.
type scriptedAllocator struct {
	ids   []uint32
	calls int
}

func (s *scriptedAllocator) Next(uint32, uint16) (uint32, error) {
	i := min(s.calls, len(s.ids)-1)
	s.calls++
	return s.ids[i], nil
}
