package sequencer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var (
	bucketClaims    = []byte("claims")
	bucketHighWater = []byte("high_water")
)

// BoltSequencer persists claims in a bbolt database. Each Claim or Next runs
// in a single update transaction, so grants survive restarts and concurrent
// callers sharing the database are serialized by bbolt.
type BoltSequencer struct {
	db  *bbolt.DB
	log logrus.FieldLogger
}

// Compile-time interface check.
var _ Sequencer = (*BoltSequencer)(nil)

// OpenBoltSequencer opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltSequencer(dbPath string, log logrus.FieldLogger) (*BoltSequencer, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrIOFailure, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketClaims, bucketHighWater} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("sequencer: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &BoltSequencer{db: db, log: orDiscard(log).WithField("sequencer", "bolt")}, nil
}

// Close closes the underlying database.
func (s *BoltSequencer) Close() error { return s.db.Close() }

// spaceKey encodes user_id ‖ write_space.
func spaceKey(userID uint32, writeSpace uint16) []byte {
	k := make([]byte, 6)
	binary.BigEndian.PutUint32(k[0:4], userID)
	binary.BigEndian.PutUint16(k[4:6], writeSpace)
	return k
}

// claimKey encodes user_id ‖ write_space ‖ version_id.
func claimKey(userID uint32, writeSpace uint16, versionID uint32) []byte {
	k := make([]byte, 10)
	copy(k, spaceKey(userID, writeSpace))
	binary.BigEndian.PutUint32(k[6:10], versionID)
	return k
}

func readHighWater(tx *bbolt.Tx, sk []byte) uint32 {
	v := tx.Bucket(bucketHighWater).Get(sk)
	if len(v) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func claimTx(tx *bbolt.Tx, userID uint32, writeSpace uint16, versionID uint32) error {
	claims := tx.Bucket(bucketClaims)
	ck := claimKey(userID, writeSpace, versionID)
	if claims.Get(ck) != nil {
		return fmt.Errorf("%w: user %d space %d version %d", ErrVersionConflict, userID, writeSpace, versionID)
	}
	if err := claims.Put(ck, []byte{1}); err != nil {
		return err
	}

	sk := spaceKey(userID, writeSpace)
	if versionID > readHighWater(tx, sk) {
		hw := make([]byte, 4)
		binary.BigEndian.PutUint32(hw, versionID)
		return tx.Bucket(bucketHighWater).Put(sk, hw)
	}
	return nil
}

// Claim implements Sequencer.
func (s *BoltSequencer) Claim(userID uint32, writeSpace uint16, versionID uint32) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return claimTx(tx, userID, writeSpace, versionID)
	})
	if errors.Is(err, ErrVersionConflict) {
		s.log.WithFields(logrus.Fields{
			"user": userID, "space": writeSpace, "version": versionID,
		}).Debug("version conflict")
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Next implements Sequencer.
func (s *BoltSequencer) Next(userID uint32, writeSpace uint16) (uint32, error) {
	var v uint32
	err := s.db.Update(func(tx *bbolt.Tx) error {
		hw := readHighWater(tx, spaceKey(userID, writeSpace))
		if hw == math.MaxUint32 {
			return fmt.Errorf("%w: user %d space %d", ErrExhausted, userID, writeSpace)
		}
		v = hw + 1
		return claimTx(tx, userID, writeSpace, v)
	})
	if errors.Is(err, ErrExhausted) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return v, nil
}

// HighWater returns the highest version_id granted in the write space, or 0.
func (s *BoltSequencer) HighWater(userID uint32, writeSpace uint16) (uint32, error) {
	var hw uint32
	err := s.db.View(func(tx *bbolt.Tx) error {
		hw = readHighWater(tx, spaceKey(userID, writeSpace))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return hw, nil
}
