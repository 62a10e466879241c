package cryptree

import "fmt"

// Kind distinguishes the three node types.
type Kind uint8

const (
	// KindFile is a file node.
	KindFile Kind = 0
	// KindDirectory is a directory node.
	KindDirectory Kind = 1
	// KindLink is a one-child directory inserted when write access is delegated.
	KindLink Kind = 2
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDirectory:
		return "DIR"
	case KindLink:
		return "LINK"
	default:
		return "UNKNOWN"
	}
}

// IsDirectory reports whether nodes of this kind hold child links.
func (k Kind) IsDirectory() bool { return k == KindDirectory || k == KindLink }

func (k Kind) valid() bool { return k <= KindLink }

func parseKind(b byte) (Kind, error) {
	k := Kind(b)
	if !k.valid() {
		return 0, fmt.Errorf("%w: unknown node kind %d", ErrMalformedChunk, b)
	}
	return k, nil
}

// bodyKey selects the key for component 2: the base key of a directory, or
// the data key of a file.
func (k Kind) bodyKey(base, second SecretKey) SecretKey {
	if k == KindFile {
		return second
	}
	return base
}

// tailKey selects the key for component 3: the parent key of a directory, or
// the base key of a file.
func (k Kind) tailKey(base, second SecretKey) SecretKey {
	if k == KindFile {
		return base
	}
	return second
}
