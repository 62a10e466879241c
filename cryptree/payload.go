package cryptree

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bitfsorg/cryptree-go/blockstore"
	"github.com/bitfsorg/cryptree-go/content"
)

// MaxChildNameLen is the maximum length of a child name in bytes.
const MaxChildNameLen = 255

// Payload field numbers (protobuf wire format).
const (
	fieldBodyChild protowire.Number = 1

	fieldLinkName      protowire.Number = 1
	fieldLinkKind      protowire.Number = 2
	fieldLinkLocation  protowire.Number = 3
	fieldLinkBase      protowire.Number = 4
	fieldLinkWriteLink protowire.Number = 5

	fieldMetaParent     protowire.Number = 1
	fieldMetaProperties protowire.Number = 2

	fieldParentLocation protowire.Number = 1
	fieldParentKey      protowire.Number = 2
	fieldParentKind     protowire.Number = 3

	fieldPropName        protowire.Number = 1
	fieldPropSize        protowire.Number = 2
	fieldPropModified    protowire.Number = 3
	fieldPropMimeType    protowire.Number = 4
	fieldPropCompression protowire.Number = 5
	fieldPropContentHash protowire.Number = 6
)

// ChildLink is one entry of a directory body. It carries the child's base
// key in clear (inside the directory's base-key ciphertext) and the child's
// write key sealed under the directory's write key.
type ChildLink struct {
	Name      string
	Kind      Kind
	Location  blockstore.Key
	Base      SecretKey
	WriteLink []byte
}

// ReadCapability returns the read capability the link grants.
func (l ChildLink) ReadCapability() ReadCapability {
	return ReadCapability{Location: l.Location, Base: l.Base}
}

// ParentLink is the relative link from a node up to its parent. Kind is the
// parent's type, so path walks can pass over link nodes.
type ParentLink struct {
	Location  blockstore.Key
	ParentKey SecretKey
	Kind      Kind
}

// Capability returns the parent capability the link grants.
func (p ParentLink) Capability() ParentCapability {
	return ParentCapability{Location: p.Location, ParentKey: p.ParentKey}
}

// Properties is node metadata. Link nodes carry only Name.
type Properties struct {
	Name        string
	Size        uint64
	Modified    time.Time
	MimeType    string
	Compression content.Compression
	ContentHash []byte
}

// nameOnly reports whether every field but Name is unset.
func (p Properties) nameOnly() bool {
	return p.Size == 0 && p.Modified.IsZero() && p.MimeType == "" &&
		p.Compression == content.CompressNone && len(p.ContentHash) == 0
}

// Metadata is the decrypted component 3: the parent link (nil at the root)
// plus properties.
type Metadata struct {
	Parent     *ParentLink
	Properties Properties
}

func validateChildName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxChildNameLen {
		return fmt.Errorf("%w: name too long (%d bytes, max %d)", ErrInvalidName, len(name), MaxChildNameLen)
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: name contains path separator", ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: name is reserved", ErrInvalidName)
	}
	if strings.ContainsAny(name, "\x00") {
		return fmt.Errorf("%w: name contains null byte", ErrInvalidName)
	}
	return nil
}

// --- encoding ---

func appendChildLink(b []byte, l ChildLink) []byte {
	b = protowire.AppendTag(b, fieldLinkName, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	b = protowire.AppendTag(b, fieldLinkKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.Kind))
	b = protowire.AppendTag(b, fieldLinkLocation, protowire.BytesType)
	b = protowire.AppendBytes(b, l.Location[:])
	b = protowire.AppendTag(b, fieldLinkBase, protowire.BytesType)
	b = protowire.AppendBytes(b, l.Base[:])
	if len(l.WriteLink) > 0 {
		b = protowire.AppendTag(b, fieldLinkWriteLink, protowire.BytesType)
		b = protowire.AppendBytes(b, l.WriteLink)
	}
	return b
}

// marshalDirectoryBody encodes child links in order.
func marshalDirectoryBody(children []ChildLink) []byte {
	var b []byte
	for _, c := range children {
		b = protowire.AppendTag(b, fieldBodyChild, protowire.BytesType)
		b = protowire.AppendBytes(b, appendChildLink(nil, c))
	}
	return b
}

func appendProperties(b []byte, p Properties) []byte {
	if p.Name != "" {
		b = protowire.AppendTag(b, fieldPropName, protowire.BytesType)
		b = protowire.AppendString(b, p.Name)
	}
	if p.Size != 0 {
		b = protowire.AppendTag(b, fieldPropSize, protowire.VarintType)
		b = protowire.AppendVarint(b, p.Size)
	}
	if !p.Modified.IsZero() {
		b = protowire.AppendTag(b, fieldPropModified, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(p.Modified.UnixNano()))
	}
	if p.MimeType != "" {
		b = protowire.AppendTag(b, fieldPropMimeType, protowire.BytesType)
		b = protowire.AppendString(b, p.MimeType)
	}
	if p.Compression != content.CompressNone {
		b = protowire.AppendTag(b, fieldPropCompression, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Compression))
	}
	if len(p.ContentHash) > 0 {
		b = protowire.AppendTag(b, fieldPropContentHash, protowire.BytesType)
		b = protowire.AppendBytes(b, p.ContentHash)
	}
	return b
}

// marshalMetadata encodes component 3. For a link node only the name is kept.
func marshalMetadata(kind Kind, m Metadata) []byte {
	var b []byte
	if m.Parent != nil {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldParentLocation, protowire.BytesType)
		pb = protowire.AppendBytes(pb, m.Parent.Location[:])
		pb = protowire.AppendTag(pb, fieldParentKey, protowire.BytesType)
		pb = protowire.AppendBytes(pb, m.Parent.ParentKey[:])
		pb = protowire.AppendTag(pb, fieldParentKind, protowire.VarintType)
		pb = protowire.AppendVarint(pb, uint64(m.Parent.Kind))
		b = protowire.AppendTag(b, fieldMetaParent, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}
	props := m.Properties
	if kind == KindLink {
		props = Properties{Name: props.Name}
	}
	b = protowire.AppendTag(b, fieldMetaProperties, protowire.BytesType)
	b = protowire.AppendBytes(b, appendProperties(nil, props))
	return b
}

// --- decoding ---

// forEachField walks a message, calling fn for every field. Fields fn does
// not consume are skipped.
func forEachField(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedChunk, protowire.ParseError(n))
		}
		b = b[n:]

		used, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if used == 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
		}
		if used < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedChunk, protowire.ParseError(used))
		}
		b = b[used:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: expected bytes field, got wire type %d", ErrMalformedChunk, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedChunk, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: expected varint field, got wire type %d", ErrMalformedChunk, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %w", ErrMalformedChunk, protowire.ParseError(n))
	}
	return v, n, nil
}

func parseBlockKey(v []byte) (blockstore.Key, error) {
	k, err := blockstore.KeyFromBytes(v)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	return k, nil
}

func parseSecretKey(v []byte) (SecretKey, error) {
	var k SecretKey
	if len(v) != SecretKeySize {
		return k, fmt.Errorf("%w: key is %d bytes", ErrMalformedChunk, len(v))
	}
	copy(k[:], v)
	return k, nil
}

func parseChildLink(b []byte) (ChildLink, error) {
	var (
		l                    ChildLink
		hasLocation, hasBase bool
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldLinkName:
			v, n, err := consumeBytes(typ, b)
			l.Name = string(v)
			return n, err
		case fieldLinkKind:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > uint64(KindLink) {
				return 0, fmt.Errorf("%w: unknown child kind %d", ErrMalformedChunk, v)
			}
			l.Kind = Kind(v)
			return n, nil
		case fieldLinkLocation:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			l.Location, err = parseBlockKey(v)
			hasLocation = true
			return n, err
		case fieldLinkBase:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			l.Base, err = parseSecretKey(v)
			hasBase = true
			return n, err
		case fieldLinkWriteLink:
			v, n, err := consumeBytes(typ, b)
			l.WriteLink = append([]byte(nil), v...)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return l, err
	}
	if l.Name == "" || !hasLocation || !hasBase {
		return l, fmt.Errorf("%w: incomplete child link", ErrMalformedChunk)
	}
	return l, nil
}

// parseDirectoryBody decodes child links. A link node must hold exactly one.
func parseDirectoryBody(kind Kind, b []byte) ([]ChildLink, error) {
	var children []ChildLink
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != fieldBodyChild {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		l, err := parseChildLink(v)
		if err != nil {
			return 0, err
		}
		children = append(children, l)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if kind == KindLink && len(children) != 1 {
		return nil, fmt.Errorf("%w: link node has %d children", ErrMalformedChunk, len(children))
	}
	return children, nil
}

func parseProperties(b []byte) (Properties, error) {
	var p Properties
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldPropName:
			v, n, err := consumeBytes(typ, b)
			p.Name = string(v)
			return n, err
		case fieldPropSize:
			v, n, err := consumeVarint(typ, b)
			p.Size = v
			return n, err
		case fieldPropModified:
			v, n, err := consumeVarint(typ, b)
			if err == nil {
				p.Modified = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			}
			return n, err
		case fieldPropMimeType:
			v, n, err := consumeBytes(typ, b)
			p.MimeType = string(v)
			return n, err
		case fieldPropCompression:
			v, n, err := consumeVarint(typ, b)
			if err == nil && v > 0xFF {
				err = fmt.Errorf("%w: compression %d", ErrMalformedChunk, v)
			}
			p.Compression = content.Compression(v)
			return n, err
		case fieldPropContentHash:
			v, n, err := consumeBytes(typ, b)
			p.ContentHash = append([]byte(nil), v...)
			return n, err
		}
		return 0, nil
	})
	return p, err
}

func parseParentLink(b []byte) (*ParentLink, error) {
	var (
		p              ParentLink
		hasLoc, hasKey bool
	)
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldParentLocation:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			p.Location, err = parseBlockKey(v)
			hasLoc = true
			return n, err
		case fieldParentKey:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			p.ParentKey, err = parseSecretKey(v)
			hasKey = true
			return n, err
		case fieldParentKind:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			if v > uint64(KindLink) {
				return 0, fmt.Errorf("%w: unknown parent kind %d", ErrMalformedChunk, v)
			}
			p.Kind = Kind(v)
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !hasLoc || !hasKey {
		return nil, fmt.Errorf("%w: incomplete parent link", ErrMalformedChunk)
	}
	return &p, nil
}

// parseMetadata decodes component 3. A link node may carry only a name.
func parseMetadata(kind Kind, b []byte) (Metadata, error) {
	var m Metadata
	err := forEachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldMetaParent:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.Parent, err = parseParentLink(v)
			return n, err
		case fieldMetaProperties:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.Properties, err = parseProperties(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return m, err
	}
	if kind == KindLink && !m.Properties.nameOnly() {
		return m, fmt.Errorf("%w: link node metadata beyond a filename", ErrMalformedChunk)
	}
	return m, nil
}
