package blockstore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// KeySize is the length of a serialized Key.
const KeySize = 11

// Key identifies one stored ciphertext block.
//
// Layout (big-endian):
//
//	byte  0     key_version
//	bytes 1-4   user_id
//	bytes 5-6   write_space
//	bytes 7-10  version_id
//
// Key is an array so it compares and hashes by exact byte equality and can be
// used directly as a map key.
type Key [KeySize]byte

// NewKey builds a Key from its four fields. Values are taken as given.
func NewKey(keyVersion uint8, userID uint32, writeSpace uint16, versionID uint32) Key {
	var k Key
	k[0] = keyVersion
	binary.BigEndian.PutUint32(k[1:5], userID)
	binary.BigEndian.PutUint16(k[5:7], writeSpace)
	binary.BigEndian.PutUint32(k[7:11], versionID)
	return k
}

// KeyFromBytes copies b into a Key. b must be exactly KeySize bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// ParseKey decodes the hex form produced by Key.String.
func ParseKey(s string) (Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return KeyFromBytes(b)
}

// KeyVersion returns byte 0 of the key.
func (k Key) KeyVersion() uint8 { return k[0] }

// UserID returns the owning user.
func (k Key) UserID() uint32 { return binary.BigEndian.Uint32(k[1:5]) }

// WriteSpace returns the write space the block belongs to.
func (k Key) WriteSpace() uint16 { return binary.BigEndian.Uint16(k[5:7]) }

// VersionID returns the per-write-space version counter.
func (k Key) VersionID() uint32 { return binary.BigEndian.Uint32(k[7:11]) }

// Bytes returns a copy of the serialized key.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}
