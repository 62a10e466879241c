package blockstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var bucketBlocks = []byte("blocks")

// BoltStore persists blocks in a single bbolt database file.
type BoltStore struct {
	db  *bbolt.DB
	log logrus.FieldLogger
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string, log logrus.FieldLogger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrIOFailure, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBlocks); err != nil {
			return fmt.Errorf("boltstore: create bucket %q: %w", bucketBlocks, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &BoltStore{
		db:  db,
		log: orDiscard(log).WithField("store", "bolt"),
	}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Get returns a copy of the block stored under key.
func (s *BoltStore) Get(key Key) ([]byte, bool, error) {
	var (
		block []byte
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		// A cursor distinguishes an empty block from an absent key.
		k, v := tx.Bucket(bucketBlocks).Cursor().Seek(key[:])
		if k != nil && bytes.Equal(k, key[:]) {
			// bbolt values are only valid for the life of the transaction.
			block = copyBytes(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return block, found, nil
}

// Insert stores block under key, replacing any previous value.
func (s *BoltStore) Insert(key Key, block []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		v := block
		if v == nil {
			v = []byte{}
		}
		return tx.Bucket(bucketBlocks).Put(key[:], v)
	})
	if err != nil {
		return fmt.Errorf("%w: put block: %w", ErrIOFailure, err)
	}
	s.log.WithField("key", key.String()).WithField("size", len(block)).Debug("block inserted")
	return nil
}

// List returns all stored keys in ascending byte order.
func (s *BoltStore) List() ([]Key, error) {
	var keys []Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlocks).ForEach(func(k, _ []byte) error {
			key, err := KeyFromBytes(k)
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list blocks: %w", ErrIOFailure, err)
	}
	return keys, nil
}
