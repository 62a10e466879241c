package blockstore

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// TieredStore reads blocks from sources in priority order: the local store
// first, then each remote in turn. Remote hits are cached locally.
// Inserts go to the local store and then to every remote.
type TieredStore struct {
	Local   Store   // nil disables local caching
	Remotes []Store // tried in order after Local
	log     logrus.FieldLogger
}

// Compile-time interface check.
var _ Store = (*TieredStore)(nil)

// NewTieredStore creates a TieredStore over local and remotes.
func NewTieredStore(local Store, remotes []Store, log logrus.FieldLogger) *TieredStore {
	return &TieredStore{
		Local:   local,
		Remotes: remotes,
		log:     orDiscard(log).WithField("store", "tiered"),
	}
}

// Get returns the first hit. A remote that fails is skipped; the block is
// reported absent only if every source answered "absent". If no source
// answered and at least one failed, the last failure is returned.
func (t *TieredStore) Get(key Key) ([]byte, bool, error) {
	if t.Local != nil {
		block, ok, err := t.Local.Get(key)
		if err != nil {
			return nil, false, fmt.Errorf("tiered: local store: %w", err)
		}
		if ok {
			return block, true, nil
		}
	}

	var lastErr error
	for i, remote := range t.Remotes {
		block, ok, err := remote.Get(key)
		if err != nil {
			t.log.WithError(err).WithField("remote", i).Warn("remote get failed")
			lastErr = err
			continue
		}
		if !ok {
			continue
		}
		if t.Local != nil {
			if err := t.Local.Insert(key, block); err != nil {
				// Cache failures do not fail the read.
				t.log.WithError(err).WithField("key", key.String()).Warn("local cache insert failed")
			}
		}
		return block, true, nil
	}
	if lastErr != nil {
		return nil, false, fmt.Errorf("tiered: %w", lastErr)
	}
	return nil, false, nil
}

// Insert writes block to the local store and then to every remote. The first
// failure aborts the write.
func (t *TieredStore) Insert(key Key, block []byte) error {
	if t.Local != nil {
		if err := t.Local.Insert(key, block); err != nil {
			return fmt.Errorf("tiered: local store: %w", err)
		}
	}
	for i, remote := range t.Remotes {
		if err := remote.Insert(key, block); err != nil {
			return fmt.Errorf("tiered: remote %d: %w", i, err)
		}
	}
	return nil
}
