package blockstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore returns err from every operation.
type failingStore struct{ err error }

func (f failingStore) Get(Key) ([]byte, bool, error) { return nil, false, f.err }
func (f failingStore) Insert(Key, []byte) error      { return f.err }

// countingStore records Get calls on top of a MemStore.
type countingStore struct {
	*MemStore
	gets int
}

func (c *countingStore) Get(key Key) ([]byte, bool, error) {
	c.gets++
	return c.MemStore.Get(key)
}

func TestTieredStore_Contract(t *testing.T) {
	testStoreContract(t, NewTieredStore(NewMemStore(), []Store{NewMemStore()}, nil))
}

func TestTieredStore_LocalHitSkipsRemotes(t *testing.T) {
	local := NewMemStore()
	remote := &countingStore{MemStore: NewMemStore()}
	key := NewKey(1, 1, 1, 1)
	require.NoError(t, local.Insert(key, []byte("local")))

	ts := NewTieredStore(local, []Store{remote}, nil)
	got, ok, err := ts.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("local"), got)
	assert.Equal(t, 0, remote.gets)
}

func TestTieredStore_RemoteHitIsCached(t *testing.T) {
	local := NewMemStore()
	remote := NewMemStore()
	key := NewKey(1, 1, 1, 2)
	require.NoError(t, remote.Insert(key, []byte("remote")))

	ts := NewTieredStore(local, []Store{remote}, nil)
	got, ok, err := ts.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("remote"), got)

	cached, ok, err := local.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("remote"), cached)
}

func TestTieredStore_FailingRemoteIsSkipped(t *testing.T) {
	boom := errors.New("boom")
	good := NewMemStore()
	key := NewKey(1, 1, 1, 3)
	require.NoError(t, good.Insert(key, []byte("ok")))

	ts := NewTieredStore(nil, []Store{failingStore{boom}, good}, nil)
	got, ok, err := ts.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), got)
}

func TestTieredStore_AllRemotesFail(t *testing.T) {
	boom := errors.New("boom")
	ts := NewTieredStore(NewMemStore(), []Store{failingStore{boom}}, nil)

	_, ok, err := ts.Get(NewKey(1, 1, 1, 4))
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestTieredStore_AbsentEverywhere(t *testing.T) {
	ts := NewTieredStore(NewMemStore(), []Store{NewMemStore(), NewMemStore()}, nil)
	_, ok, err := ts.Get(NewKey(1, 1, 1, 5))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTieredStore_InsertFanOut(t *testing.T) {
	local, r1, r2 := NewMemStore(), NewMemStore(), NewMemStore()
	ts := NewTieredStore(local, []Store{r1, r2}, nil)
	key := NewKey(1, 1, 1, 6)
	require.NoError(t, ts.Insert(key, []byte("everywhere")))

	for _, s := range []*MemStore{local, r1, r2} {
		got, ok, err := s.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("everywhere"), got)
	}
}

func TestTieredStore_InsertRemoteFailure(t *testing.T) {
	boom := errors.New("boom")
	ts := NewTieredStore(NewMemStore(), []Store{failingStore{boom}}, nil)
	err := ts.Insert(NewKey(1, 1, 1, 7), []byte("x"))
	assert.ErrorIs(t, err, boom)
}
