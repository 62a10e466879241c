package cryptree

import (
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// chunkParams describes one block to encrypt.
type chunkParams struct {
	location blockstore.Key
	kind     Kind
	keys     nodeKeys
	next     *blockstore.Key
	previous *blockstore.Key
	body     []byte // component 2 payload
	tail     []byte // component 3 payload, nil when absent
	signer   *ec.PrivateKey
}

// encodeChunk encrypts and frames one block.
func encodeChunk(p chunkParams) ([]byte, error) {
	fb := fixedBlock{
		kind:      p.kind,
		secondKey: p.keys.second,
		next:      p.next,
		previous:  p.previous,
	}
	if p.signer != nil {
		sealed, err := sealSigner(p.keys.write, p.location, p.signer)
		if err != nil {
			return nil, err
		}
		fb.signerPub = p.signer.PubKey().Compressed()
		fb.sealedSigner = sealed
	} else if !p.keys.write.IsZero() {
		check, err := sealWriteCheck(p.keys.write, p.location)
		if err != nil {
			return nil, err
		}
		fb.writeCheck = check
	}

	var (
		e   envelope
		err error
	)
	if e.fixed, err = sealComponent(p.keys.base, p.location, componentFixed, fb.marshal()); err != nil {
		return nil, err
	}
	bodyKey := p.kind.bodyKey(p.keys.base, p.keys.second)
	if e.body, err = sealComponent(bodyKey, p.location, componentBody, pad(p.body, BodyMultiple)); err != nil {
		return nil, err
	}
	if p.tail != nil {
		tailKey := p.kind.tailKey(p.keys.base, p.keys.second)
		if e.tail, err = sealComponent(tailKey, p.location, componentTail, pad(p.tail, TailMultiple)); err != nil {
			return nil, err
		}
	}

	signed := e.marshalUnsigned(p.signer != nil)
	if p.signer == nil {
		return signed, nil
	}
	sig, err := signBlock(p.signer, p.location, signed)
	if err != nil {
		return nil, err
	}
	return appendSignature(signed, sig), nil
}

// chunk is a block whose component 1 has been opened with the base key.
type chunk struct {
	location blockstore.Key
	base     SecretKey
	fixed    *fixedBlock
	env      *envelope
}

// decodeChunk parses block, opens component 1 with base and verifies the
// block signature.
func decodeChunk(location blockstore.Key, block []byte, base SecretKey) (*chunk, error) {
	env, err := parseEnvelope(block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	plain, err := openComponent(base, location, componentFixed, env.fixed)
	if err != nil {
		return nil, err
	}
	fb, err := parseFixedBlock(plain)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	if err := verifyBlock(fb.signerPub, location, env); err != nil {
		return nil, err
	}
	return &chunk{location: location, base: base, fixed: fb, env: env}, nil
}

// body opens component 2.
func (c *chunk) body() ([]byte, error) {
	key := c.fixed.kind.bodyKey(c.base, c.fixed.secondKey)
	plain, err := openComponent(key, c.location, componentBody, c.env.body)
	if err != nil {
		return nil, err
	}
	payload, err := unpad(plain)
	if err != nil {
		return nil, fmt.Errorf("%s: component 2: %w", c.location, err)
	}
	return payload, nil
}

// metadata opens component 3, or returns nil when the chunk has none.
func (c *chunk) metadata() (*Metadata, error) {
	if c.env.tail == nil {
		return nil, nil
	}
	key := c.fixed.kind.tailKey(c.base, c.fixed.secondKey)
	return openTail(c.fixed.kind, c.location, c.env.tail, key)
}

func openTail(kind Kind, location blockstore.Key, tail []byte, key SecretKey) (*Metadata, error) {
	plain, err := openComponent(key, location, componentTail, tail)
	if err != nil {
		return nil, err
	}
	payload, err := unpad(plain)
	if err != nil {
		return nil, fmt.Errorf("%s: component 3: %w", location, err)
	}
	m, err := parseMetadata(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: component 3: %w", location, err)
	}
	return &m, nil
}
