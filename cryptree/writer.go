package cryptree

import (
	"fmt"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/cryptree-go/blockstore"
	"github.com/bitfsorg/cryptree-go/content"
)

// VersionAllocator hands out version_ids that are unique within a write
// space. sequencer.Sequencer satisfies it.
type VersionAllocator interface {
	Next(userID uint32, writeSpace uint16) (uint32, error)
}

// Writer authors new node versions in one write space. Every chunk it
// inserts gets a fresh version_id from the allocator.
//
// Operations that change a directory return the capability of its new
// version. Propagating that location into the grandparent is the caller's
// job, through ReplaceChild.
type Writer struct {
	reader     *Reader
	store      blockstore.Store
	alloc      VersionAllocator
	keyVersion uint8
	userID     uint32
	writeSpace uint16
	sign       bool
	chunkSize  int
	index      *VersionIndex
	now        func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithKeyVersion sets byte 0 of every Block Key written. Default 1.
func WithKeyVersion(v uint8) Option { return func(w *Writer) { w.keyVersion = v } }

// WithoutSigning disables signing keypairs on nodes this writer creates.
// New versions of existing nodes keep their signer either way.
func WithoutSigning() Option { return func(w *Writer) { w.sign = false } }

// WithChunkSize sets the maximum body payload per chunk.
// Default content.DefaultChunkSize.
func WithChunkSize(n int) Option { return func(w *Writer) { w.chunkSize = n } }

// WithVersionIndex records every version written in ix.
func WithVersionIndex(ix *VersionIndex) Option { return func(w *Writer) { w.index = ix } }

// WithClock overrides the source of modification times.
func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

// NewWriter creates a Writer for (userID, writeSpace).
func NewWriter(store blockstore.Store, alloc VersionAllocator, userID uint32, writeSpace uint16, opts ...Option) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store", ErrNilParam)
	}
	if alloc == nil {
		return nil, fmt.Errorf("%w: allocator", ErrNilParam)
	}
	w := &Writer{
		reader:     NewReader(store),
		store:      store,
		alloc:      alloc,
		keyVersion: 1,
		userID:     userID,
		writeSpace: writeSpace,
		sign:       true,
		chunkSize:  content.DefaultChunkSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.chunkSize <= 0 {
		return nil, content.ErrInvalidChunkSize
	}
	return w, nil
}

// Reader returns a Reader over the writer's store.
func (w *Writer) Reader() *Reader { return w.reader }

// maxAllocateAttempts bounds how many version_ids allocate draws before
// giving up on a write space whose ids keep colliding with stored blocks.
const maxAllocateAttempts = 8

// allocate reserves a fresh location in the write space. A version_id whose
// location already holds a block is skipped and a new one drawn.
func (w *Writer) allocate() (blockstore.Key, error) {
	var loc blockstore.Key
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		v, err := w.alloc.Next(w.userID, w.writeSpace)
		if err != nil {
			return blockstore.Key{}, fmt.Errorf("cryptree: allocate version: %w", err)
		}
		loc = blockstore.NewKey(w.keyVersion, w.userID, w.writeSpace, v)
		_, exists, err := w.store.Get(loc)
		if err != nil {
			return blockstore.Key{}, fmt.Errorf("cryptree: check %s: %w", loc, err)
		}
		if !exists {
			return loc, nil
		}
	}
	return blockstore.Key{}, fmt.Errorf("%w: %s after %d attempts", ErrLocationInUse, loc, maxAllocateAttempts)
}

func (w *Writer) allocateN(n int) ([]blockstore.Key, error) {
	locs := make([]blockstore.Key, n)
	for i := range locs {
		var err error
		if locs[i], err = w.allocate(); err != nil {
			return nil, err
		}
	}
	return locs, nil
}

func (w *Writer) newSigner() (*ec.PrivateKey, error) {
	if !w.sign {
		return nil, nil
	}
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("cryptree: generate signing key: %w", err)
	}
	return priv, nil
}

// version is a node version ready to be written.
type version struct {
	kind     Kind
	keys     nodeKeys
	previous *blockstore.Key
	body     []byte
	meta     *Metadata
	signer   *ec.PrivateKey
}

// put writes v with its first chunk at first. Continuation chunks are
// allocated here and inserted before the first chunk, so a reader never
// sees a first chunk whose chain is incomplete.
func (w *Writer) put(first blockstore.Key, v version) error {
	parts, err := content.Split(v.body, w.chunkSize)
	if err != nil {
		return err
	}

	locs := make([]blockstore.Key, len(parts))
	locs[0] = first
	for i := 1; i < len(parts); i++ {
		if locs[i], err = w.allocate(); err != nil {
			return err
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		p := chunkParams{
			location: locs[i],
			kind:     v.kind,
			keys:     v.keys,
			body:     parts[i],
			signer:   v.signer,
		}
		if i+1 < len(locs) {
			p.next = &locs[i+1]
		}
		if i == 0 {
			p.previous = v.previous
			if v.meta != nil {
				p.tail = marshalMetadata(v.kind, *v.meta)
			}
		}
		block, err := encodeChunk(p)
		if err != nil {
			return err
		}
		if err := w.store.Insert(locs[i], block); err != nil {
			return fmt.Errorf("cryptree: insert %s: %w", locs[i], err)
		}
	}

	if w.index != nil {
		w.index.Record(first, v.previous)
	}
	return nil
}

// editable is a node version opened with its write key.
type editable struct {
	kind     Kind
	keys     nodeKeys
	location blockstore.Key
	body     []byte
	children []ChildLink
	meta     *Metadata
	signer   *ec.PrivateKey
}

// successor returns the next version of e with the same keys and signer.
func (e *editable) successor() version {
	prev := e.location
	return version{
		kind:     e.kind,
		keys:     e.keys,
		previous: &prev,
		body:     e.body,
		meta:     e.meta,
		signer:   e.signer,
	}
}

func (e *editable) childIndex(name string) int {
	for i, c := range e.children {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// open loads the version wc names for writing. The write key must open the
// signing secret, or the write check of an unsigned node.
func (w *Writer) open(wc WriteCapability) (*editable, error) {
	l, err := w.reader.load(wc.ReadCapability)
	if err != nil {
		return nil, err
	}
	e := &editable{
		kind:     l.kind(),
		keys:     nodeKeys{base: wc.Base, second: l.first.fixed.secondKey, write: wc.Write},
		location: wc.Location,
		body:     l.body(),
		meta:     l.meta,
	}
	if e.signer, err = l.first.checkWrite(wc.Write); err != nil {
		return nil, err
	}
	if e.kind.IsDirectory() {
		if e.children, err = listLoaded(l); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// openChild opens the child at idx of p with the write key sealed in p.
func (w *Writer) openChild(p *editable, idx int) (*editable, error) {
	link := p.children[idx]
	childWrite, err := openWriteLink(p.keys.write, link.Location, link.WriteLink)
	if err != nil {
		return nil, err
	}
	c, err := w.open(WriteCapability{link.ReadCapability(), childWrite})
	if err != nil {
		return nil, err
	}
	if c.meta == nil {
		return nil, fmt.Errorf("%w: child %q has no metadata", ErrMalformedChunk, link.Name)
	}
	return c, nil
}

// commit writes the next version of directory p at loc.
func (w *Writer) commit(p *editable, loc blockstore.Key) (WriteCapability, error) {
	p.body = marshalDirectoryBody(p.children)
	if p.meta != nil && p.kind == KindDirectory {
		p.meta.Properties.Modified = w.now()
	}
	if err := w.put(loc, p.successor()); err != nil {
		return WriteCapability{}, err
	}
	return WriteCapability{ReadCapability{loc, p.keys.base}, p.keys.write}, nil
}

// link builds the child link for a node written at loc under parent p.
func link(p *editable, name string, kind Kind, loc blockstore.Key, keys nodeKeys) (ChildLink, error) {
	wl, err := sealWriteLink(p.keys.write, loc, keys.write)
	if err != nil {
		return ChildLink{}, err
	}
	return ChildLink{Name: name, Kind: kind, Location: loc, Base: keys.base, WriteLink: wl}, nil
}

// CreateRoot writes the first version of a new root directory. The root has
// no parent link.
func (w *Writer) CreateRoot() (WriteCapability, error) {
	keys, err := newNodeKeys()
	if err != nil {
		return WriteCapability{}, err
	}
	signer, err := w.newSigner()
	if err != nil {
		return WriteCapability{}, err
	}
	loc, err := w.allocate()
	if err != nil {
		return WriteCapability{}, err
	}
	err = w.put(loc, version{
		kind:   KindDirectory,
		keys:   keys,
		body:   marshalDirectoryBody(nil),
		signer: signer,
	})
	if err != nil {
		return WriteCapability{}, err
	}
	return WriteCapability{ReadCapability{loc, keys.base}, keys.write}, nil
}

// CreateDirectory adds an empty directory called name to parent. It returns
// the new directory and the new version of parent.
func (w *Writer) CreateDirectory(parent WriteCapability, name string) (child, newParent WriteCapability, err error) {
	return w.createChild(parent, name, KindDirectory, marshalDirectoryBody(nil), Properties{})
}

// CreateFile adds a file called name holding data to parent. props supplies
// MimeType, Compression and optionally Modified; Name, Size and ContentHash
// are computed.
func (w *Writer) CreateFile(parent WriteCapability, name string, data []byte, props Properties) (child, newParent WriteCapability, err error) {
	body, props, err := w.packFile(data, props)
	if err != nil {
		return WriteCapability{}, WriteCapability{}, err
	}
	return w.createChild(parent, name, KindFile, body, props)
}

// packFile compresses data and fills in the derived properties. The content
// hash covers the parts put will spread over the chunk chain.
func (w *Writer) packFile(data []byte, props Properties) ([]byte, Properties, error) {
	packed, err := content.Compress(data, props.Compression)
	if err != nil {
		return nil, props, err
	}
	parts, err := content.Split(packed, w.chunkSize)
	if err != nil {
		return nil, props, err
	}
	props.Size = uint64(len(data))
	props.ContentHash = content.Hash(parts)
	if props.Modified.IsZero() {
		props.Modified = w.now()
	}
	return packed, props, nil
}

func (w *Writer) createChild(parent WriteCapability, name string, kind Kind, body []byte, props Properties) (WriteCapability, WriteCapability, error) {
	var none WriteCapability
	if err := validateChildName(name); err != nil {
		return none, none, err
	}
	p, err := w.open(parent)
	if err != nil {
		return none, none, err
	}
	if p.kind != KindDirectory {
		return none, none, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	if p.childIndex(name) >= 0 {
		return none, none, fmt.Errorf("%w: %q", ErrChildExists, name)
	}

	keys, err := newNodeKeys()
	if err != nil {
		return none, none, err
	}
	signer, err := w.newSigner()
	if err != nil {
		return none, none, err
	}
	// The child is allocated before the parent's next version.
	locs, err := w.allocateN(2)
	if err != nil {
		return none, none, err
	}
	childLoc, parentLoc := locs[0], locs[1]

	props.Name = name
	if props.Modified.IsZero() {
		props.Modified = w.now()
	}
	err = w.put(childLoc, version{
		kind: kind,
		keys: keys,
		body: body,
		meta: &Metadata{
			Parent:     &ParentLink{Location: parentLoc, ParentKey: p.keys.second, Kind: p.kind},
			Properties: props,
		},
		signer: signer,
	})
	if err != nil {
		return none, none, err
	}

	cl, err := link(p, name, kind, childLoc, keys)
	if err != nil {
		return none, none, err
	}
	p.children = append(p.children, cl)
	newParent, err := w.commit(p, parentLoc)
	if err != nil {
		return none, none, err
	}
	return WriteCapability{ReadCapability{childLoc, keys.base}, keys.write}, newParent, nil
}

// UpdateFile writes a new version of a file with data as its content. The
// parent still names the old version until ReplaceChild is called.
func (w *Writer) UpdateFile(file WriteCapability, data []byte) (WriteCapability, error) {
	f, err := w.open(file)
	if err != nil {
		return WriteCapability{}, err
	}
	if f.kind != KindFile {
		return WriteCapability{}, fmt.Errorf("%w: node type is %s", ErrNotFile, f.kind)
	}
	if f.meta == nil {
		return WriteCapability{}, fmt.Errorf("%w: file %s has no metadata", ErrMalformedChunk, file.Location)
	}

	props := f.meta.Properties
	props.Modified = time.Time{}
	if f.body, props, err = w.packFile(data, props); err != nil {
		return WriteCapability{}, err
	}
	f.meta = &Metadata{Parent: f.meta.Parent, Properties: props}

	loc, err := w.allocate()
	if err != nil {
		return WriteCapability{}, err
	}
	if err := w.put(loc, f.successor()); err != nil {
		return WriteCapability{}, err
	}
	return WriteCapability{ReadCapability{loc, f.keys.base}, f.keys.write}, nil
}

// Child returns the write capability of the direct child called name. The
// parent's write key opens the child's write link.
func (w *Writer) Child(parent WriteCapability, name string) (WriteCapability, error) {
	p, err := w.open(parent)
	if err != nil {
		return WriteCapability{}, err
	}
	if !p.kind.IsDirectory() {
		return WriteCapability{}, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	idx := p.childIndex(name)
	if idx < 0 {
		return WriteCapability{}, fmt.Errorf("%w: %q", ErrChildNotFound, name)
	}
	l := p.children[idx]
	childWrite, err := openWriteLink(p.keys.write, l.Location, l.WriteLink)
	if err != nil {
		return WriteCapability{}, err
	}
	return WriteCapability{l.ReadCapability(), childWrite}, nil
}

// RenameChild renames a child of parent. The child is re-versioned so its own
// metadata carries the new name; a link node is renamed together with the
// node it delegates. Returns the new version of parent.
func (w *Writer) RenameChild(parent WriteCapability, oldName, newName string) (WriteCapability, error) {
	if err := validateChildName(newName); err != nil {
		return WriteCapability{}, err
	}
	p, err := w.open(parent)
	if err != nil {
		return WriteCapability{}, err
	}
	if !p.kind.IsDirectory() {
		return WriteCapability{}, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	idx := p.childIndex(oldName)
	if idx < 0 {
		return WriteCapability{}, fmt.Errorf("%w: %q", ErrChildNotFound, oldName)
	}
	if oldName == newName {
		return parent, nil
	}
	if p.childIndex(newName) >= 0 {
		return WriteCapability{}, fmt.Errorf("%w: %q", ErrChildExists, newName)
	}

	c, err := w.openChild(p, idx)
	if err != nil {
		return WriteCapability{}, err
	}
	if c.kind == KindLink {
		return w.renameLinked(p, idx, c, newName)
	}
	locs, err := w.allocateN(2)
	if err != nil {
		return WriteCapability{}, err
	}
	childLoc, parentLoc := locs[0], locs[1]

	c.meta.Properties.Name = newName
	c.meta.Properties.Modified = w.now()
	c.meta.Parent = &ParentLink{Location: parentLoc, ParentKey: p.keys.second, Kind: p.kind}
	if err := w.put(childLoc, c.successor()); err != nil {
		return WriteCapability{}, err
	}

	if p.children[idx], err = link(p, newName, c.kind, childLoc, c.keys); err != nil {
		return WriteCapability{}, err
	}
	return w.commit(p, parentLoc)
}

// renameLinked renames the link node l at idx of p. The delegated node inside
// l is re-versioned too, so its metadata and l's child entry carry newName.
func (w *Writer) renameLinked(p *editable, idx int, l *editable, newName string) (WriteCapability, error) {
	if len(l.children) != 1 {
		return WriteCapability{}, fmt.Errorf("%w: link %s has %d children", ErrIntegrity, l.location, len(l.children))
	}
	inner, err := w.openChild(l, 0)
	if err != nil {
		return WriteCapability{}, err
	}
	locs, err := w.allocateN(3)
	if err != nil {
		return WriteCapability{}, err
	}
	innerLoc, linkLoc, parentLoc := locs[0], locs[1], locs[2]

	inner.meta.Properties.Name = newName
	inner.meta.Properties.Modified = w.now()
	inner.meta.Parent = &ParentLink{Location: linkLoc, ParentKey: l.keys.second, Kind: KindLink}
	if err := w.put(innerLoc, inner.successor()); err != nil {
		return WriteCapability{}, err
	}

	if l.children[0], err = link(l, newName, inner.kind, innerLoc, inner.keys); err != nil {
		return WriteCapability{}, err
	}
	l.meta.Properties.Name = newName
	l.meta.Parent = &ParentLink{Location: parentLoc, ParentKey: p.keys.second, Kind: p.kind}
	if _, err := w.commit(l, linkLoc); err != nil {
		return WriteCapability{}, err
	}

	if p.children[idx], err = link(p, newName, KindLink, linkLoc, l.keys); err != nil {
		return WriteCapability{}, err
	}
	return w.commit(p, parentLoc)
}

// RemoveChild drops the child called name from parent. The child's blocks
// remain in the store. Returns the new version of parent.
func (w *Writer) RemoveChild(parent WriteCapability, name string) (WriteCapability, error) {
	p, err := w.open(parent)
	if err != nil {
		return WriteCapability{}, err
	}
	if p.kind != KindDirectory {
		return WriteCapability{}, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	idx := p.childIndex(name)
	if idx < 0 {
		return WriteCapability{}, fmt.Errorf("%w: %q", ErrChildNotFound, name)
	}
	p.children = append(p.children[:idx], p.children[idx+1:]...)

	loc, err := w.allocate()
	if err != nil {
		return WriteCapability{}, err
	}
	return w.commit(p, loc)
}

// ReplaceChild points the child called name at newLocation, a later version
// of the same node. The history of newLocation must reach the version the
// parent currently names. Returns the new version of parent.
func (w *Writer) ReplaceChild(parent WriteCapability, name string, newLocation blockstore.Key) (WriteCapability, error) {
	p, err := w.open(parent)
	if err != nil {
		return WriteCapability{}, err
	}
	if !p.kind.IsDirectory() {
		return WriteCapability{}, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	idx := p.childIndex(name)
	if idx < 0 {
		return WriteCapability{}, fmt.Errorf("%w: %q", ErrChildNotFound, name)
	}
	old := p.children[idx]
	if old.Location == newLocation {
		return parent, nil
	}

	history, err := w.reader.History(ReadCapability{Location: newLocation, Base: old.Base})
	if err != nil {
		return WriteCapability{}, err
	}
	if !containsVersion(history, old.Location) {
		return WriteCapability{}, fmt.Errorf("%w: %s is not a later version of %s", ErrIntegrity, newLocation, old.Location)
	}
	if kind := history[0].Kind(); kind != old.Kind {
		return WriteCapability{}, fmt.Errorf("%w: %s is a %s, link says %s", ErrIntegrity, newLocation, kind, old.Kind)
	}

	childWrite, err := openWriteLink(p.keys.write, old.Location, old.WriteLink)
	if err != nil {
		return WriteCapability{}, err
	}
	keys := nodeKeys{base: old.Base, write: childWrite}
	if p.children[idx], err = link(p, name, old.Kind, newLocation, keys); err != nil {
		return WriteCapability{}, err
	}

	loc, err := w.allocate()
	if err != nil {
		return WriteCapability{}, err
	}
	return w.commit(p, loc)
}

func containsVersion(history []*Node, location blockstore.Key) bool {
	for _, n := range history {
		if loc, ok := n.Location(); ok && loc == location {
			return true
		}
	}
	return false
}

// DelegateWrite inserts a link node between parent and the child called
// name, and returns the link node's write capability together with the new
// version of parent. The grantee can rename or replace the child inside the
// link node without seeing the child's siblings.
//
// If the child already is a link node, its write capability is returned and
// parent is unchanged.
func (w *Writer) DelegateWrite(parent WriteCapability, name string) (grant, newParent WriteCapability, err error) {
	var none WriteCapability
	p, err := w.open(parent)
	if err != nil {
		return none, none, err
	}
	if p.kind != KindDirectory {
		return none, none, fmt.Errorf("%w: node type is %s", ErrNotDirectory, p.kind)
	}
	idx := p.childIndex(name)
	if idx < 0 {
		return none, none, fmt.Errorf("%w: %q", ErrChildNotFound, name)
	}
	if existing := p.children[idx]; existing.Kind == KindLink {
		linkWrite, err := openWriteLink(p.keys.write, existing.Location, existing.WriteLink)
		if err != nil {
			return none, none, err
		}
		return WriteCapability{existing.ReadCapability(), linkWrite}, parent, nil
	}

	c, err := w.openChild(p, idx)
	if err != nil {
		return none, none, err
	}
	linkKeys, err := newNodeKeys()
	if err != nil {
		return none, none, err
	}
	linkSigner, err := w.newSigner()
	if err != nil {
		return none, none, err
	}
	locs, err := w.allocateN(3)
	if err != nil {
		return none, none, err
	}
	childLoc, linkLoc, parentLoc := locs[0], locs[1], locs[2]

	// The child now hangs below the link node.
	c.meta.Parent = &ParentLink{Location: linkLoc, ParentKey: linkKeys.second, Kind: KindLink}
	if err := w.put(childLoc, c.successor()); err != nil {
		return none, none, err
	}

	linkNode := &editable{kind: KindLink, keys: linkKeys}
	inner, err := link(linkNode, name, c.kind, childLoc, c.keys)
	if err != nil {
		return none, none, err
	}
	err = w.put(linkLoc, version{
		kind: KindLink,
		keys: linkKeys,
		body: marshalDirectoryBody([]ChildLink{inner}),
		meta: &Metadata{
			Parent:     &ParentLink{Location: parentLoc, ParentKey: p.keys.second, Kind: p.kind},
			Properties: Properties{Name: name},
		},
		signer: linkSigner,
	})
	if err != nil {
		return none, none, err
	}

	if p.children[idx], err = link(p, name, KindLink, linkLoc, linkKeys); err != nil {
		return none, none, err
	}
	newParent, err = w.commit(p, parentLoc)
	if err != nil {
		return none, none, err
	}
	return WriteCapability{ReadCapability{linkLoc, linkKeys.base}, linkKeys.write}, newParent, nil
}
