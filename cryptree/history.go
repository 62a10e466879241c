package cryptree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// PredecessorFunc returns the previous version of location, or nil at the
// node's creation point. It returns ErrNotFound when location is absent.
type PredecessorFunc func(location blockstore.Key) (*blockstore.Key, error)

// WalkVersions follows previous-version pointers from start, calling visit
// for each version newest first, until a version with no predecessor.
//
// A chain that revisits a location, or points at a missing block, is
// ErrIntegrity. A missing start is ErrNotFound.
func WalkVersions(start blockstore.Key, predecessor PredecessorFunc, visit func(blockstore.Key) error) error {
	seen := make(map[blockstore.Key]struct{})
	cur := start
	for {
		if _, dup := seen[cur]; dup {
			return fmt.Errorf("%w: version chain from %s revisits %s", ErrIntegrity, start, cur)
		}
		seen[cur] = struct{}{}

		prev, err := predecessor(cur)
		if err != nil {
			if cur != start && errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: version chain from %s points at missing %s", ErrIntegrity, start, cur)
			}
			return err
		}
		if visit != nil {
			if err := visit(cur); err != nil {
				return err
			}
		}
		if prev == nil {
			return nil
		}
		cur = *prev
	}
}

// VersionIndex is an arena of versions indexed by location, each recording
// its predecessor. It answers history queries without touching ciphertext.
// Safe for concurrent use.
type VersionIndex struct {
	mu       sync.RWMutex
	previous map[blockstore.Key]*blockstore.Key
}

// NewVersionIndex creates an empty index.
func NewVersionIndex() *VersionIndex {
	return &VersionIndex{previous: make(map[blockstore.Key]*blockstore.Key)}
}

// Record adds a version. previous is nil for a creation point.
func (ix *VersionIndex) Record(location blockstore.Key, previous *blockstore.Key) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var p *blockstore.Key
	if previous != nil {
		k := *previous
		p = &k
	}
	ix.previous[location] = p
}

// Add records a stored node.
func (ix *VersionIndex) Add(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: node", ErrNilParam)
	}
	loc, ok := n.Location()
	if !ok {
		return fmt.Errorf("%w: node has no location", ErrNilParam)
	}
	ix.Record(loc, n.previous)
	return nil
}

// Predecessor implements PredecessorFunc over the index.
func (ix *VersionIndex) Predecessor(location blockstore.Key) (*blockstore.Key, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	prev, ok := ix.previous[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return prev, nil
}

// Chain returns the versions from start back to the creation point.
func (ix *VersionIndex) Chain(start blockstore.Key) ([]blockstore.Key, error) {
	var chain []blockstore.Key
	err := WalkVersions(start, ix.Predecessor, func(k blockstore.Key) error {
		chain = append(chain, k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// Len returns the number of recorded versions.
func (ix *VersionIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.previous)
}
