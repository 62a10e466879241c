package cryptree

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// SecretKeySize is the length of every symmetric key in the hierarchy.
const SecretKeySize = 32

// SecretKey is a symmetric key: base, parent, data or write.
type SecretKey [SecretKeySize]byte

// NewSecretKey returns a fresh random key.
func NewSecretKey() (SecretKey, error) {
	var k SecretKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("cryptree: generate key: %w", err)
	}
	return k, nil
}

// IsZero reports whether k is the all-zero key.
func (k SecretKey) IsZero() bool { return k == SecretKey{} }

// String returns a short fingerprint; key material is never printed.
func (k SecretKey) String() string {
	return "key:" + hex.EncodeToString(k[:4])
}

// ReadCapability grants read access to one node version and everything
// reachable below it.
type ReadCapability struct {
	Location blockstore.Key
	Base     SecretKey
}

// WriteCapability grants read access plus the right to author new versions.
type WriteCapability struct {
	ReadCapability
	Write SecretKey
}

// ParentCapability grants access to a node's parent link and metadata only.
// For a directory ParentKey is its parent key; for a file it is the base key.
type ParentCapability struct {
	Location  blockstore.Key
	ParentKey SecretKey
}

// nodeKeys is the full key set of one node. Second is the parent key of a
// directory or link node and the data key of a file.
type nodeKeys struct {
	base   SecretKey
	second SecretKey
	write  SecretKey
}

func newNodeKeys() (nodeKeys, error) {
	var (
		nk  nodeKeys
		err error
	)
	if nk.base, err = NewSecretKey(); err != nil {
		return nk, err
	}
	if nk.second, err = NewSecretKey(); err != nil {
		return nk, err
	}
	if nk.write, err = NewSecretKey(); err != nil {
		return nk, err
	}
	return nk, nil
}
