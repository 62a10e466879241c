package blockstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerStore persists blocks in a badger LSM database. It suits write-heavy
// deployments where many small blocks are appended.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// Compile-time interface check.
var _ Store = (*BadgerStore)(nil)

// OpenBadgerStore opens or creates a badger database in dir.
func OpenBadgerStore(dir string, log logrus.FieldLogger) (*BadgerStore, error) {
	if dir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB value log files

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger db: %w", ErrIOFailure, err)
	}
	return &BadgerStore{
		db:  db,
		log: orDiscard(log).WithField("store", "badger"),
	}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// Get returns a copy of the block stored under key.
func (s *BadgerStore) Get(key Key) ([]byte, bool, error) {
	var block []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key[:])
		if err != nil {
			return err
		}
		block, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if block == nil {
		block = []byte{}
	}
	return block, true, nil
}

// Insert stores block under key, replacing any previous value.
func (s *BadgerStore) Insert(key Key, block []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), copyBytes(block))
	})
	if err != nil {
		return fmt.Errorf("%w: set block: %w", ErrIOFailure, err)
	}
	s.log.WithField("key", key.String()).WithField("size", len(block)).Debug("block inserted")
	return nil
}
