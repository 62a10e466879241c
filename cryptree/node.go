// Package cryptree implements a tree of encrypted nodes where read and write
// permission are conveyed by possession of symmetric keys.
//
// Every node version is stored as one or more blocks. Each block has three
// sealed components: a fixed-size block opened with the base key, a body
// padded to a multiple of 4096 bytes (child links or file data), and on the
// first block of every non-root node a tail padded to a multiple of 16 bytes
// holding the parent link and metadata.
//
// Key hierarchy:
//
//	directory  base -> parent key, child links (with each child's base key)
//	           parent key -> parent link, metadata
//	file       base -> data key, parent link, metadata
//	           data key -> content
//	any node   write key -> signing secret, children's write keys
//
// Writing never mutates a block. A new version is a new block whose
// previous-version pointer names the old one.
package cryptree

import (
	"github.com/bitfsorg/cryptree-go/blockstore"
)

// Node is one directory, file or link node at a point in its version
// history. A Node is immutable.
type Node struct {
	store    blockstore.Store
	kind     Kind
	location *blockstore.Key
	previous *blockstore.Key
}

// New builds a node bound to store. previous is nil for the first version of
// a node. The node has no location until it is written.
func New(store blockstore.Store, isDirectory bool, previous *blockstore.Key) *Node {
	kind := KindFile
	if isDirectory {
		kind = KindDirectory
	}
	return newNode(store, kind, nil, previous)
}

// NewLink builds a link node bound to store.
func NewLink(store blockstore.Store, previous *blockstore.Key) *Node {
	return newNode(store, KindLink, nil, previous)
}

func newNode(store blockstore.Store, kind Kind, location, previous *blockstore.Key) *Node {
	n := &Node{store: store, kind: kind}
	if location != nil {
		l := *location
		n.location = &l
	}
	if previous != nil {
		p := *previous
		n.previous = &p
	}
	return n
}

// IsDirectory reports whether the node holds child links. Link nodes are
// directories.
func (n *Node) IsDirectory() bool { return n.kind.IsDirectory() }

// Kind returns the node type.
func (n *Node) Kind() Kind { return n.kind }

// PreviousVersion returns the location of the prior version, if any.
func (n *Node) PreviousVersion() (blockstore.Key, bool) {
	if n.previous == nil {
		return blockstore.Key{}, false
	}
	return *n.previous, true
}

// Location returns the block key of this version, if it has been stored.
func (n *Node) Location() (blockstore.Key, bool) {
	if n.location == nil {
		return blockstore.Key{}, false
	}
	return *n.location, true
}

// Store returns the block store the node is persisted through.
func (n *Node) Store() blockstore.Store { return n.store }
