package cryptree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bitfsorg/cryptree-go/blockstore"
	"github.com/bitfsorg/cryptree-go/content"
)

// maxLinkDepth bounds how many link nodes Lookup follows.
const maxLinkDepth = 8

// Reader decrypts nodes from a store. It holds no key material and is safe
// for concurrent use.
type Reader struct {
	store blockstore.Store
}

// NewReader creates a Reader over store.
func NewReader(store blockstore.Store) *Reader {
	return &Reader{store: store}
}

// Store returns the underlying block store.
func (r *Reader) Store() blockstore.Store { return r.store }

// fetch returns the block at location, or ErrNotFound.
func (r *Reader) fetch(location blockstore.Key) ([]byte, error) {
	block, ok, err := r.store.Get(location)
	if err != nil {
		return nil, fmt.Errorf("cryptree: fetch %s: %w", location, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return block, nil
}

func (r *Reader) loadChunk(location blockstore.Key, base SecretKey) (*chunk, error) {
	block, err := r.fetch(location)
	if err != nil {
		return nil, err
	}
	return decodeChunk(location, block, base)
}

// loaded is a fully decrypted node version.
type loaded struct {
	first *chunk
	parts [][]byte // component 2 payload of every chunk in order
	meta  *Metadata
}

func (l *loaded) kind() Kind { return l.first.fixed.kind }

// joiner feeds the chunk parts, in chain order, into a content.Joiner.
func (l *loaded) joiner() *content.Joiner {
	j := content.NewJoiner()
	for _, p := range l.parts {
		j.Add(p)
	}
	return j
}

func (l *loaded) body() []byte {
	b, _ := l.joiner().Join(nil)
	return b
}

// load decrypts every chunk of the version rc names.
func (r *Reader) load(rc ReadCapability) (*loaded, error) {
	first, err := r.loadChunk(rc.Location, rc.Base)
	if err != nil {
		return nil, err
	}
	body, err := first.body()
	if err != nil {
		return nil, err
	}
	meta, err := first.metadata()
	if err != nil {
		return nil, err
	}
	l := &loaded{first: first, parts: [][]byte{body}, meta: meta}

	seen := map[blockstore.Key]struct{}{rc.Location: {}}
	for next := first.fixed.next; next != nil; {
		if _, dup := seen[*next]; dup {
			return nil, fmt.Errorf("%w: chunk chain of %s revisits %s", ErrIntegrity, rc.Location, *next)
		}
		seen[*next] = struct{}{}

		c, err := r.loadChunk(*next, rc.Base)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: chunk chain of %s points at missing %s", ErrIntegrity, rc.Location, *next)
		}
		if err != nil {
			return nil, err
		}
		if err := checkContinuation(first, c); err != nil {
			return nil, err
		}
		part, err := c.body()
		if err != nil {
			return nil, err
		}
		l.parts = append(l.parts, part)
		next = c.fixed.next
	}
	return l, nil
}

// checkContinuation validates a follow-up chunk against the first chunk.
func checkContinuation(first, c *chunk) error {
	switch {
	case c.fixed.kind != first.fixed.kind:
		return fmt.Errorf("%w: chunk %s kind %s, want %s", ErrIntegrity, c.location, c.fixed.kind, first.fixed.kind)
	case c.fixed.secondKey != first.fixed.secondKey:
		return fmt.Errorf("%w: chunk %s key mismatch", ErrIntegrity, c.location)
	case !sameSigner(c.fixed.signerPub, first.fixed.signerPub):
		return fmt.Errorf("%w: chunk %s signer mismatch", ErrIntegrity, c.location)
	case c.fixed.previous != nil || c.env.tail != nil:
		return fmt.Errorf("%w: continuation chunk %s carries version fields", ErrMalformedChunk, c.location)
	}
	return nil
}

// Open decrypts the first chunk of the version rc names.
func (r *Reader) Open(rc ReadCapability) (*Node, error) {
	c, err := r.loadChunk(rc.Location, rc.Base)
	if err != nil {
		return nil, err
	}
	return newNode(r.store, c.fixed.kind, &c.location, c.fixed.previous), nil
}

// Metadata returns the node's parent link and properties. The root has none
// and yields nil.
func (r *Reader) Metadata(rc ReadCapability) (*Metadata, error) {
	c, err := r.loadChunk(rc.Location, rc.Base)
	if err != nil {
		return nil, err
	}
	return c.metadata()
}

// List returns the child links of a directory or link node in stored order.
func (r *Reader) List(rc ReadCapability) ([]ChildLink, error) {
	l, err := r.load(rc)
	if err != nil {
		return nil, err
	}
	return listLoaded(l)
}

func listLoaded(l *loaded) ([]ChildLink, error) {
	if !l.kind().IsDirectory() {
		return nil, fmt.Errorf("%w: node type is %s", ErrNotDirectory, l.kind())
	}
	children, err := parseDirectoryBody(l.kind(), l.body())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.first.location, err)
	}
	return children, nil
}

// Lookup finds the child called name. Link nodes are followed, so the result
// names the delegated node itself.
func (r *Reader) Lookup(rc ReadCapability, name string) (ChildLink, error) {
	children, err := r.List(rc)
	if err != nil {
		return ChildLink{}, err
	}
	link, ok := findChild(children, name)
	if !ok {
		return ChildLink{}, fmt.Errorf("%w: %q", ErrChildNotFound, name)
	}
	for depth := 0; link.Kind == KindLink; depth++ {
		if depth == maxLinkDepth {
			return ChildLink{}, fmt.Errorf("%w: link chain under %q too deep", ErrIntegrity, name)
		}
		inner, err := r.List(link.ReadCapability())
		if err != nil {
			return ChildLink{}, err
		}
		if len(inner) != 1 {
			return ChildLink{}, fmt.Errorf("%w: link %q has %d children", ErrIntegrity, name, len(inner))
		}
		link = inner[0]
	}
	return link, nil
}

func findChild(children []ChildLink, name string) (ChildLink, bool) {
	for _, c := range children {
		if c.Name == name {
			return c, true
		}
	}
	return ChildLink{}, false
}

// ReadFile returns the content of a file node, verifying its content hash
// and undoing compression.
func (r *Reader) ReadFile(rc ReadCapability) ([]byte, error) {
	l, err := r.load(rc)
	if err != nil {
		return nil, err
	}
	if l.kind() != KindFile {
		return nil, fmt.Errorf("%w: node type is %s", ErrNotFile, l.kind())
	}
	if l.meta == nil {
		return nil, fmt.Errorf("%w: file %s has no metadata", ErrMalformedChunk, rc.Location)
	}
	props := l.meta.Properties

	packed, err := l.joiner().Join(props.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIntegrity, rc.Location, err)
	}
	data, err := content.Decompress(packed, props.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedChunk, rc.Location, err)
	}
	if uint64(len(data)) != props.Size {
		return nil, fmt.Errorf("%w: %s: size %d, metadata says %d", ErrIntegrity, rc.Location, len(data), props.Size)
	}
	return data, nil
}

// ParentCapability derives the parent-traversal capability of a node from
// its read capability.
func (r *Reader) ParentCapability(rc ReadCapability) (ParentCapability, error) {
	c, err := r.loadChunk(rc.Location, rc.Base)
	if err != nil {
		return ParentCapability{}, err
	}
	return ParentCapability{
		Location:  rc.Location,
		ParentKey: c.fixed.kind.tailKey(rc.Base, c.fixed.secondKey),
	}, nil
}

// ParentMetadata opens component 3 with a parent capability alone. The root
// yields nil.
func (r *Reader) ParentMetadata(pc ParentCapability) (*Metadata, error) {
	block, err := r.fetch(pc.Location)
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(block)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pc.Location, err)
	}
	if env.tail == nil {
		return nil, nil
	}
	// The kind lives in component 1, which a parent-key holder cannot open.
	return openTail(KindDirectory, pc.Location, env.tail, pc.ParentKey)
}

// Parent returns the capability for the node's parent. ok is false at the root.
func (r *Reader) Parent(pc ParentCapability) (parent ParentCapability, ok bool, err error) {
	m, err := r.ParentMetadata(pc)
	if err != nil {
		return ParentCapability{}, false, err
	}
	if m == nil || m.Parent == nil {
		return ParentCapability{}, false, nil
	}
	return m.Parent.Capability(), true, nil
}

// Path walks parent links to the root and returns the slash-separated path
// of the node. Names are taken from each node's own metadata; link nodes
// repeat their child's name and are passed over.
func (r *Reader) Path(pc ParentCapability) (string, error) {
	var (
		names   []string
		viaLink bool
	)
	seen := make(map[blockstore.Key]struct{})
	for {
		if _, dup := seen[pc.Location]; dup {
			return "", fmt.Errorf("%w: parent chain revisits %s", ErrIntegrity, pc.Location)
		}
		seen[pc.Location] = struct{}{}

		m, err := r.ParentMetadata(pc)
		if err != nil {
			if len(seen) > 1 && errors.Is(err, ErrNotFound) {
				return "", fmt.Errorf("%w: parent link points at missing %s", ErrIntegrity, pc.Location)
			}
			return "", err
		}
		if m == nil || m.Parent == nil {
			break
		}
		if !viaLink {
			names = append(names, m.Properties.Name)
		}
		viaLink = m.Parent.Kind == KindLink
		pc = m.Parent.Capability()
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return "/" + strings.Join(names, "/"), nil
}

// History returns every version from rc.Location back to the node's
// creation point, newest first. All versions must share one signer.
func (r *Reader) History(rc ReadCapability) ([]*Node, error) {
	var (
		nodes  []*Node
		chunks = make(map[blockstore.Key]*chunk)
	)
	predecessor := func(loc blockstore.Key) (*blockstore.Key, error) {
		c, err := r.loadChunk(loc, rc.Base)
		if err != nil {
			return nil, err
		}
		chunks[loc] = c
		return c.fixed.previous, nil
	}

	var newer *chunk
	err := WalkVersions(rc.Location, predecessor, func(loc blockstore.Key) error {
		c := chunks[loc]
		if newer != nil {
			if c.fixed.kind != newer.fixed.kind {
				return fmt.Errorf("%w: %s changes kind from %s to %s", ErrIntegrity, newer.location, c.fixed.kind, newer.fixed.kind)
			}
			if !sameSigner(c.fixed.signerPub, newer.fixed.signerPub) {
				return fmt.Errorf("%w: %s changes signer", ErrIntegrity, newer.location)
			}
		}
		nodes = append(nodes, newNode(r.store, c.fixed.kind, &c.location, c.fixed.previous))
		newer = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// VerifyWrite checks that wc.Write is the write key of the version wc names.
// For a signed node the key must open the signing secret and the secret must
// match the advertised signer; an unsigned node's write check must open.
func (r *Reader) VerifyWrite(wc WriteCapability) error {
	c, err := r.loadChunk(wc.Location, wc.Base)
	if err != nil {
		return err
	}
	_, err = c.checkWrite(wc.Write)
	return err
}
