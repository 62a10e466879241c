package cryptree

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// Every sealed value is nonce(24) || XChaCha20-Poly1305 ciphertext || tag(16).
// The AEAD key is HKDF-SHA256(IKM = hierarchy key, salt = block key, info),
// so one hierarchy key never encrypts two blocks under the same AEAD key.
const (
	// NonceSize is the XChaCha20 nonce length.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the Poly1305 tag length.
	TagSize = chacha20poly1305.Overhead

	// Overhead is the ciphertext expansion of one sealed value.
	Overhead = NonceSize + TagSize
)

// component numbers the three parts of a chunk.
type component uint8

const (
	componentFixed component = 1
	componentBody  component = 2
	componentTail  component = 3
)

// Sealing purposes other than the chunk components.
const (
	infoWriteLink  = "cryptree-write-link"
	infoSigner     = "cryptree-signer"
	infoWriteCheck = "cryptree-write-check"
)

func (c component) info() string { return fmt.Sprintf("cryptree-component-%d", c) }

// deriveAEADKey expands key into a per-block AEAD key.
func deriveAEADKey(key SecretKey, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, key[:], salt, []byte(info))
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("cryptree: derive key: %w", err)
	}
	return out, nil
}

// seal encrypts plaintext bound to location, info and ad.
func seal(key SecretKey, location blockstore.Key, info string, ad, plaintext []byte) ([]byte, error) {
	k, err := deriveAEADKey(key, location[:], info)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, fmt.Errorf("cryptree: init cipher: %w", err)
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("cryptree: generate nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, ad), nil
}

// open reverses seal. Any authentication failure is ErrDecryptionFailed.
func open(key SecretKey, location blockstore.Key, info string, ad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrMalformedChunk, len(ciphertext))
	}
	k, err := deriveAEADKey(key, location[:], info)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, fmt.Errorf("cryptree: init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// componentAD binds a component ciphertext to its block and position.
func componentAD(location blockstore.Key, c component) []byte {
	ad := make([]byte, 0, blockstore.KeySize+1)
	ad = append(ad, location[:]...)
	return append(ad, byte(c))
}

func sealComponent(key SecretKey, location blockstore.Key, c component, plaintext []byte) ([]byte, error) {
	return seal(key, location, c.info(), componentAD(location, c), plaintext)
}

func openComponent(key SecretKey, location blockstore.Key, c component, ciphertext []byte) ([]byte, error) {
	pt, err := open(key, location, c.info(), componentAD(location, c), ciphertext)
	if err != nil {
		return nil, fmt.Errorf("component %d of %s: %w", c, location, err)
	}
	return pt, nil
}

// sealedKeySize is the length of a SecretKey or signing secret sealed by sealKey.
const sealedKeySize = SecretKeySize + Overhead

// sealKey seals a 32-byte secret under key, bound to location and purpose.
func sealKey(key SecretKey, location blockstore.Key, info string, secret []byte) ([]byte, error) {
	return seal(key, location, info, location[:], secret)
}

func openKey(key SecretKey, location blockstore.Key, info string, sealed []byte) ([]byte, error) {
	if len(sealed) != sealedKeySize {
		return nil, fmt.Errorf("%w: sealed key is %d bytes", ErrMalformedChunk, len(sealed))
	}
	return open(key, location, info, location[:], sealed)
}

// sealWriteLink seals a child's write key under its parent's write key.
func sealWriteLink(parentWrite SecretKey, childLocation blockstore.Key, childWrite SecretKey) ([]byte, error) {
	return sealKey(parentWrite, childLocation, infoWriteLink, childWrite[:])
}

// openWriteLink recovers a child's write key.
func openWriteLink(parentWrite SecretKey, childLocation blockstore.Key, sealed []byte) (SecretKey, error) {
	var k SecretKey
	b, err := openKey(parentWrite, childLocation, infoWriteLink, sealed)
	if err != nil {
		return k, fmt.Errorf("write link for %s: %w", childLocation, err)
	}
	copy(k[:], b)
	return k, nil
}
