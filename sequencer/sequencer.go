// Package sequencer allocates version_ids within a write space.
//
// Concurrent writers to one write space must never encrypt two different
// blocks under the same Block Key. A Sequencer grants each
// (user_id, write_space, version_id) exactly once; a second claim fails with
// ErrVersionConflict and the loser retries with a fresh id.
package sequencer

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sequencer grants version_ids for write spaces.
type Sequencer interface {
	// Claim grants versionID to the caller, or returns ErrVersionConflict if
	// it was already granted.
	Claim(userID uint32, writeSpace uint16, versionID uint32) error

	// Next claims and returns the id after the highest one granted so far.
	// The first id of an empty write space is 1.
	Next(userID uint32, writeSpace uint16) (uint32, error)
}

// space identifies one write space.
type space struct {
	user  uint32
	space uint16
}

type spaceState struct {
	claimed   map[uint32]struct{}
	highWater uint32
}

// MemSequencer is an in-memory Sequencer. Safe for concurrent use.
type MemSequencer struct {
	mu     sync.Mutex
	spaces map[space]*spaceState
	log    logrus.FieldLogger
}

// Compile-time interface check.
var _ Sequencer = (*MemSequencer)(nil)

// NewMemSequencer creates an empty MemSequencer. log may be nil.
func NewMemSequencer(log logrus.FieldLogger) *MemSequencer {
	return &MemSequencer{
		spaces: make(map[space]*spaceState),
		log:    orDiscard(log).WithField("sequencer", "memory"),
	}
}

func (m *MemSequencer) state(userID uint32, writeSpace uint16) *spaceState {
	k := space{userID, writeSpace}
	st, ok := m.spaces[k]
	if !ok {
		st = &spaceState{claimed: make(map[uint32]struct{})}
		m.spaces[k] = st
	}
	return st
}

// Claim implements Sequencer.
func (m *MemSequencer) Claim(userID uint32, writeSpace uint16, versionID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(userID, writeSpace)
	if _, taken := st.claimed[versionID]; taken {
		m.log.WithFields(logrus.Fields{
			"user": userID, "space": writeSpace, "version": versionID,
		}).Debug("version conflict")
		return fmt.Errorf("%w: user %d space %d version %d", ErrVersionConflict, userID, writeSpace, versionID)
	}
	st.claimed[versionID] = struct{}{}
	st.highWater = max(st.highWater, versionID)
	return nil
}

// Next implements Sequencer.
func (m *MemSequencer) Next(userID uint32, writeSpace uint16) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(userID, writeSpace)
	if st.highWater == math.MaxUint32 {
		return 0, fmt.Errorf("%w: user %d space %d", ErrExhausted, userID, writeSpace)
	}
	v := st.highWater + 1
	st.claimed[v] = struct{}{}
	st.highWater = v
	return v, nil
}

// HighWater returns the highest version_id granted in the write space, or 0.
func (m *MemSequencer) HighWater(userID uint32, writeSpace uint16) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.spaces[space{userID, writeSpace}]; ok {
		return st.highWater
	}
	return 0
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
