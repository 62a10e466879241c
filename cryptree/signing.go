package cryptree

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// signerPubKeySize is the length of a compressed secp256k1 public key.
const signerPubKeySize = 33

// blockDigest is the message a block signature covers.
func blockDigest(location blockstore.Key, signed []byte) []byte {
	h := sha256.New()
	h.Write(location[:])
	h.Write(signed)
	return h.Sum(nil)
}

// signBlock returns the DER signature of signed under priv.
func signBlock(priv *ec.PrivateKey, location blockstore.Key, signed []byte) ([]byte, error) {
	sig, err := priv.Sign(blockDigest(location, signed))
	if err != nil {
		return nil, fmt.Errorf("cryptree: sign block %s: %w", location, err)
	}
	return sig.Serialize(), nil
}

// verifyBlock checks a block signature against the signer named in component 1.
func verifyBlock(signerPub []byte, location blockstore.Key, e *envelope) error {
	if signerPub == nil {
		if e.signature != nil {
			return fmt.Errorf("%w: %s: signature without signer", ErrIntegrity, location)
		}
		return nil
	}
	if e.signature == nil {
		return fmt.Errorf("%w: %s: missing signature", ErrIntegrity, location)
	}
	pub, err := ec.ParsePubKey(signerPub)
	if err != nil {
		return fmt.Errorf("%w: %s: signer key: %w", ErrIntegrity, location, err)
	}
	sig, err := ec.ParseDERSignature(e.signature)
	if err != nil {
		return fmt.Errorf("%w: %s: signature: %w", ErrIntegrity, location, err)
	}
	if !sig.Verify(blockDigest(location, e.signed), pub) {
		return fmt.Errorf("%w: %s: bad signature", ErrIntegrity, location)
	}
	return nil
}

// sameSigner reports whether two versions name the same signing key.
func sameSigner(a, b []byte) bool { return bytes.Equal(a, b) }

// sealSigner seals the signing secret under the write key for location.
func sealSigner(write SecretKey, location blockstore.Key, priv *ec.PrivateKey) ([]byte, error) {
	return sealKey(write, location, infoSigner, priv.Serialize())
}

// openSigner recovers the signing keypair. Failure means write is not the
// node's write key.
func openSigner(write SecretKey, location blockstore.Key, sealed []byte) (*ec.PrivateKey, error) {
	b, err := openKey(write, location, infoSigner, sealed)
	if err != nil {
		return nil, fmt.Errorf("signer of %s: %w", location, err)
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	return priv, nil
}

// writeCheckValue is the plaintext an unsigned node seals under its write key.
var writeCheckValue = make([]byte, SecretKeySize)

func sealWriteCheck(write SecretKey, location blockstore.Key) ([]byte, error) {
	return sealKey(write, location, infoWriteCheck, writeCheckValue)
}

func openWriteCheck(write SecretKey, location blockstore.Key, sealed []byte) error {
	b, err := openKey(write, location, infoWriteCheck, sealed)
	if err != nil {
		return fmt.Errorf("write check of %s: %w", location, err)
	}
	if !bytes.Equal(b, writeCheckValue) {
		return fmt.Errorf("%w: %s: bad write check", ErrIntegrity, location)
	}
	return nil
}

// checkWrite verifies that write is the write key of c and returns the
// signing keypair, nil for an unsigned node. Signed nodes open their signing
// secret, unsigned nodes their write check.
func (c *chunk) checkWrite(write SecretKey) (*ec.PrivateKey, error) {
	if c.fixed.signerPub != nil {
		return c.signer(write)
	}
	if c.fixed.writeCheck == nil {
		return nil, fmt.Errorf("%w: %s has no write check", ErrNotSigned, c.location)
	}
	return nil, openWriteCheck(write, c.location, c.fixed.writeCheck)
}

// signer opens the signing keypair of c with write. Unsigned nodes yield
// ErrNotSigned.
func (c *chunk) signer(write SecretKey) (*ec.PrivateKey, error) {
	if c.fixed.signerPub == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSigned, c.location)
	}
	priv, err := openSigner(write, c.location, c.fixed.sealedSigner)
	if err != nil {
		return nil, err
	}
	if !sameSigner(priv.PubKey().Compressed(), c.fixed.signerPub) {
		return nil, fmt.Errorf("%w: %s: sealed signer does not match public key", ErrIntegrity, c.location)
	}
	return priv, nil
}
