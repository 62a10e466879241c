package blockstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "blocks.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_Contract(t *testing.T) {
	testStoreContract(t, newTestBoltStore(t))
}

func TestBoltStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "blocks.db")
	key := NewKey(1, 7, 7, 7)

	s, err := OpenBoltStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Insert(key, []byte("durable")))
	require.NoError(t, s.Close())

	s, err = OpenBoltStore(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, ok, err := s.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("durable"), got)
}

func TestBoltStore_NilBlockIsEmpty(t *testing.T) {
	s := newTestBoltStore(t)
	key := NewKey(1, 1, 1, 1)
	require.NoError(t, s.Insert(key, nil))

	got, ok, err := s.Get(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestBoltStore_List(t *testing.T) {
	s := newTestBoltStore(t)
	keys := []Key{NewKey(1, 1, 1, 1), NewKey(1, 1, 1, 2)}
	for _, k := range keys {
		require.NoError(t, s.Insert(k, []byte("x")))
	}
	got, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, keys, got)
}
