package cryptree

import (
	"encoding/binary"
	"fmt"

	"github.com/bitfsorg/cryptree-go/blockstore"
)

// Block envelope:
//
//	0    'C' 'T'                 magic
//	2    0x01                    envelope version
//	3    flags                   bit0 component 3, bit1 signature
//	4    component 1             FixedCiphertextSize bytes
//	206  u32 len || component 2  len % BodyMultiple == 0
//	     [u32 len || component 3] len % TailMultiple == 0
//	     [u16 len || signature]  DER over SHA256(block key || preceding bytes)
const (
	envelopeVersion = 0x01

	flagTail      = 0x01
	flagSignature = 0x02

	envelopeHeaderSize = 4
)

var envelopeMagic = [2]byte{'C', 'T'}

// Component 1 plaintext layout.
const (
	fixedLayoutVersion = 0x01

	offLayout       = 0
	offKind         = 1
	offFlags        = 2
	offSecondKey    = 3
	offNext         = offSecondKey + SecretKeySize
	offPrevious     = offNext + blockstore.KeySize
	offSignerPub    = offPrevious + blockstore.KeySize
	offSealedSigner = offSignerPub + signerPubKeySize

	// FixedPlaintextSize is the constant plaintext length of component 1.
	FixedPlaintextSize = offSealedSigner + sealedKeySize

	// FixedCiphertextSize is the constant ciphertext length of component 1.
	FixedCiphertextSize = FixedPlaintextSize + Overhead
)

const (
	fixedHasNext       = 0x01
	fixedHasPrevious   = 0x02
	fixedHasSigner     = 0x04
	fixedHasWriteCheck = 0x08

	fixedKnownFlags = fixedHasNext | fixedHasPrevious | fixedHasSigner | fixedHasWriteCheck
)

// fixedBlock is the decrypted component 1.
type fixedBlock struct {
	kind         Kind
	secondKey    SecretKey
	next         *blockstore.Key
	previous     *blockstore.Key
	signerPub    []byte // compressed secp256k1 key, nil when unsigned
	sealedSigner []byte // signing secret sealed under the write key
	writeCheck   []byte // unsigned nodes only: fixed value sealed under the write key
}

func (f *fixedBlock) marshal() []byte {
	b := make([]byte, FixedPlaintextSize)
	b[offLayout] = fixedLayoutVersion
	b[offKind] = byte(f.kind)
	copy(b[offSecondKey:], f.secondKey[:])

	var flags byte
	if f.next != nil {
		flags |= fixedHasNext
		copy(b[offNext:], f.next[:])
	}
	if f.previous != nil {
		flags |= fixedHasPrevious
		copy(b[offPrevious:], f.previous[:])
	}
	if f.signerPub != nil {
		flags |= fixedHasSigner
		copy(b[offSignerPub:], f.signerPub)
		copy(b[offSealedSigner:], f.sealedSigner)
	} else if f.writeCheck != nil {
		flags |= fixedHasWriteCheck
		copy(b[offSealedSigner:], f.writeCheck)
	}
	b[offFlags] = flags
	return b
}

func parseFixedBlock(b []byte) (*fixedBlock, error) {
	if len(b) != FixedPlaintextSize {
		return nil, fmt.Errorf("%w: component 1 is %d bytes, want %d", ErrMalformedChunk, len(b), FixedPlaintextSize)
	}
	if b[offLayout] != fixedLayoutVersion {
		return nil, fmt.Errorf("%w: component 1 layout version %d", ErrMalformedChunk, b[offLayout])
	}
	kind, err := parseKind(b[offKind])
	if err != nil {
		return nil, err
	}
	flags := b[offFlags]
	if flags&^fixedKnownFlags != 0 || flags&(fixedHasSigner|fixedHasWriteCheck) == fixedHasSigner|fixedHasWriteCheck {
		return nil, fmt.Errorf("%w: component 1 flags %#x", ErrMalformedChunk, flags)
	}

	f := &fixedBlock{kind: kind}
	copy(f.secondKey[:], b[offSecondKey:])
	if flags&fixedHasNext != 0 {
		k, _ := blockstore.KeyFromBytes(b[offNext : offNext+blockstore.KeySize])
		f.next = &k
	}
	if flags&fixedHasPrevious != 0 {
		k, _ := blockstore.KeyFromBytes(b[offPrevious : offPrevious+blockstore.KeySize])
		f.previous = &k
	}
	if flags&fixedHasSigner != 0 {
		f.signerPub = append([]byte(nil), b[offSignerPub:offSealedSigner]...)
		f.sealedSigner = append([]byte(nil), b[offSealedSigner:FixedPlaintextSize]...)
	}
	if flags&fixedHasWriteCheck != 0 {
		f.writeCheck = append([]byte(nil), b[offSealedSigner:FixedPlaintextSize]...)
	}
	return f, nil
}

// envelope holds the sealed components of one block.
type envelope struct {
	fixed     []byte
	body      []byte
	tail      []byte // nil when absent
	signature []byte // nil when absent
	signed    []byte // bytes covered by the signature
}

// marshalUnsigned serializes everything up to the signature. The signature
// flag is set when withSignature is true so the signed bytes commit to it.
func (e *envelope) marshalUnsigned(withSignature bool) []byte {
	size := envelopeHeaderSize + len(e.fixed) + 4 + len(e.body)
	if e.tail != nil {
		size += 4 + len(e.tail)
	}
	b := make([]byte, 0, size)
	b = append(b, envelopeMagic[:]...)
	b = append(b, envelopeVersion)

	var flags byte
	if e.tail != nil {
		flags |= flagTail
	}
	if withSignature {
		flags |= flagSignature
	}
	b = append(b, flags)
	b = append(b, e.fixed...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(e.body)))
	b = append(b, e.body...)
	if e.tail != nil {
		b = binary.BigEndian.AppendUint32(b, uint32(len(e.tail)))
		b = append(b, e.tail...)
	}
	return b
}

// appendSignature appends a u16-prefixed signature to signed bytes.
func appendSignature(signed, sig []byte) []byte {
	out := make([]byte, 0, len(signed)+2+len(sig))
	out = append(out, signed...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(sig)))
	return append(out, sig...)
}

// parseEnvelope splits a block into its sealed components and checks the
// length multiples. Trailing bytes are rejected.
func parseEnvelope(block []byte) (*envelope, error) {
	if len(block) < envelopeHeaderSize+FixedCiphertextSize+4 {
		return nil, fmt.Errorf("%w: block is %d bytes", ErrMalformedChunk, len(block))
	}
	if block[0] != envelopeMagic[0] || block[1] != envelopeMagic[1] {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformedChunk)
	}
	if block[2] != envelopeVersion {
		return nil, fmt.Errorf("%w: envelope version %d", ErrMalformedChunk, block[2])
	}
	flags := block[3]
	if flags&^(flagTail|flagSignature) != 0 {
		return nil, fmt.Errorf("%w: envelope flags %#x", ErrMalformedChunk, flags)
	}

	e := &envelope{}
	rest := block[envelopeHeaderSize:]
	e.fixed, rest = rest[:FixedCiphertextSize], rest[FixedCiphertextSize:]

	var err error
	if e.body, rest, err = takeU32(rest); err != nil {
		return nil, err
	}
	if len(e.body) == 0 || len(e.body)%BodyMultiple != 0 {
		return nil, fmt.Errorf("%w: component 2 is %d bytes", ErrMalformedChunk, len(e.body))
	}

	if flags&flagTail != 0 {
		if e.tail, rest, err = takeU32(rest); err != nil {
			return nil, err
		}
		if len(e.tail) == 0 || len(e.tail)%TailMultiple != 0 {
			return nil, fmt.Errorf("%w: component 3 is %d bytes", ErrMalformedChunk, len(e.tail))
		}
	}

	e.signed = block[:len(block)-len(rest)]
	if flags&flagSignature != 0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: truncated signature", ErrMalformedChunk)
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if n == 0 || len(rest) < n {
			return nil, fmt.Errorf("%w: truncated signature", ErrMalformedChunk)
		}
		e.signature, rest = rest[:n], rest[n:]
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedChunk, len(rest))
	}
	return e, nil
}

func takeU32(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated length prefix", ErrMalformedChunk)
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("%w: component length %d exceeds block", ErrMalformedChunk, n)
	}
	return b[:n], b[n:], nil
}
