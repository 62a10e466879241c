package sequencer

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequencerFactories builds every Sequencer implementation for shared tests.
func sequencerFactories(t *testing.T) map[string]func() Sequencer {
	return map[string]func() Sequencer{
		"memory": func() Sequencer { return NewMemSequencer(nil) },
		"bolt": func() Sequencer {
			s, err := OpenBoltSequencer(filepath.Join(t.TempDir(), "seq.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestSequencer_ClaimOnce(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			require.NoError(t, s.Claim(1, 1, 1))
			assert.ErrorIs(t, s.Claim(1, 1, 1), ErrVersionConflict)

			// Other write spaces and users are independent.
			assert.NoError(t, s.Claim(1, 2, 1))
			assert.NoError(t, s.Claim(2, 1, 1))
		})
	}
}

func TestSequencer_NextStartsAtOne(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			for want := uint32(1); want <= 3; want++ {
				v, err := s.Next(7, 7)
				require.NoError(t, err)
				assert.Equal(t, want, v)
			}
			assert.ErrorIs(t, s.Claim(7, 7, 2), ErrVersionConflict)
		})
	}
}

func TestSequencer_NextSkipsClaimed(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			require.NoError(t, s.Claim(1, 1, 10))
			v, err := s.Next(1, 1)
			require.NoError(t, err)
			assert.Equal(t, uint32(11), v)

			// Ids below the high-water mark can still be claimed explicitly.
			assert.NoError(t, s.Claim(1, 1, 5))
		})
	}
}

func TestSequencer_Exhausted(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			require.NoError(t, s.Claim(1, 1, ^uint32(0)))
			_, err := s.Next(1, 1)
			assert.ErrorIs(t, err, ErrExhausted)
		})
	}
}

// Two writers race for version_id 3 of the same write space: exactly one wins,
// the other sees ErrVersionConflict and succeeds with 4.
func TestSequencer_ConcurrentClaimScenario(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			require.NoError(t, s.Claim(1, 1, 1))
			require.NoError(t, s.Claim(1, 1, 2))

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make([]error, 2)
			)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i] = s.Claim(1, 1, 3)
				}(i)
			}
			close(start)
			wg.Wait()

			var wins, conflicts int
			for _, err := range results {
				switch {
				case err == nil:
					wins++
				case assert.ErrorIs(t, err, ErrVersionConflict):
					conflicts++
				}
			}
			assert.Equal(t, 1, wins)
			require.Equal(t, 1, conflicts)

			// The loser retries with the next id.
			assert.NoError(t, s.Claim(1, 1, 4))
		})
	}
}

func TestSequencer_ConcurrentNextUnique(t *testing.T) {
	for name, newSeq := range sequencerFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newSeq()
			const n = 32

			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				ids = make(map[uint32]bool)
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := s.Next(3, 3)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					assert.False(t, ids[v], "duplicate id %d", v)
					ids[v] = true
				}()
			}
			wg.Wait()
			assert.Len(t, ids, n)
		})
	}
}

func TestMemSequencer_HighWater(t *testing.T) {
	s := NewMemSequencer(nil)
	assert.Equal(t, uint32(0), s.HighWater(1, 1))
	require.NoError(t, s.Claim(1, 1, 4))
	require.NoError(t, s.Claim(1, 1, 2))
	assert.Equal(t, uint32(4), s.HighWater(1, 1))
}

func TestBoltSequencer_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seq.db")

	s, err := OpenBoltSequencer(path, nil)
	require.NoError(t, err)
	v, err := s.Next(9, 9)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
	require.NoError(t, s.Close())

	s, err = OpenBoltSequencer(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.ErrorIs(t, s.Claim(9, 9, 1), ErrVersionConflict)
	hw, err := s.HighWater(9, 9)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), hw)

	v, err = s.Next(9, 9)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)
}
