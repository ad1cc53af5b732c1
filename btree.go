package idxtree

import (
	"bytes"
	"errors"
	"fmt"

	"idxtree/internal/algo"
	"idxtree/internal/base"
	"idxtree/internal/cache"
	"idxtree/internal/storage"
)

// PageID addresses one page of a tree file.
type PageID = base.PageID

// NilPage is the absent link.
const NilPage = base.NilPage

// Tree is a disk-resident B-tree that allows duplicate keys. Both branches
// and leaves hold key/value pairs, and every page is reached through its id.
//
// A Tree is not safe for concurrent use; callers serialize access.
type Tree struct {
	store    storage.Store
	ownStore bool // Close also closes the store
	closed   bool

	geo       base.Geometry
	cmp       Comparator
	log       Logger
	syncStore bool

	size      int64      // number of stored entries
	pageCount int64      // next page id to allocate
	height    int        // 0 when empty
	root      *base.Node // nil when empty

	// Holds the root and the root's children as of the last root change
	cache *cache.PageCache
}

// Create initializes an empty tree on store, discarding anything it held.
func Create(store storage.Store, degree, keySize, valueSize int, options ...Option) (*Tree, error) {
	opts := applyOptions(options)

	geo, err := base.NewGeometry(degree, keySize, valueSize, base.DefaultLinkSize)
	if err != nil {
		return nil, err
	}
	if err := store.Truncate(0); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	t, err := newTree(store, geo, opts)
	if err != nil {
		return nil, err
	}
	if err := t.writeHeader(); err != nil {
		return nil, err
	}

	t.log.Info("created tree", "degree", degree, "key_size", keySize,
		"value_size", valueSize, "page_size", geo.PageSize())
	return t, nil
}

// Open loads an existing tree from store. The page size recomputed from the
// header must match the recorded one, and with WithSchema the declared
// parameters must match too; otherwise ErrSchemaMismatch is returned.
func Open(store storage.Store, options ...Option) (*Tree, error) {
	opts := applyOptions(options)

	buf := make([]byte, base.HeaderSize)
	if _, err := store.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := base.DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	geo, err := h.Geometry()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}

	if geo.PageSize() != h.RecordSize {
		opts.logger.Warn("page size mismatch", "recorded", h.RecordSize, "computed", geo.PageSize())
		return nil, fmt.Errorf("%w: recorded page size %d, computed %d",
			ErrSchemaMismatch, h.RecordSize, geo.PageSize())
	}
	if s := opts.schema; s != nil {
		if s.Degree != geo.Degree || s.KeySize != geo.KeySize || s.ValueSize != geo.ValueSize {
			opts.logger.Warn("schema mismatch",
				"expected", fmt.Sprintf("%d/%d/%d", s.Degree, s.KeySize, s.ValueSize),
				"found", fmt.Sprintf("%d/%d/%d", geo.Degree, geo.KeySize, geo.ValueSize))
			return nil, fmt.Errorf("%w: expected degree %d key size %d value size %d, file has %d/%d/%d",
				ErrSchemaMismatch, s.Degree, s.KeySize, s.ValueSize, geo.Degree, geo.KeySize, geo.ValueSize)
		}
	}

	t, err := newTree(store, geo, opts)
	if err != nil {
		return nil, err
	}
	t.size = h.Size
	t.pageCount = h.PageCount

	if t.size > 0 {
		root, err := t.loadPage(h.Root)
		if err != nil {
			return nil, fmt.Errorf("load root: %w", err)
		}
		if !root.IsRoot() {
			return nil, fmt.Errorf("%w: root page %d has parent %d", ErrCorruption, root.PageID, root.ParentID)
		}
		t.root = root
		if err := t.rebuildCache(); err != nil {
			return nil, err
		}
		if t.height, err = t.measureHeight(); err != nil {
			return nil, err
		}
	}

	t.log.Info("opened tree", "entries", t.size, "pages", t.pageCount, "height", t.height)
	return t, nil
}

// CreateFile creates (or truncates) a tree file at path. The tree owns the
// file and closes it on Close.
func CreateFile(path string, degree, keySize, valueSize int, options ...Option) (*Tree, error) {
	store, err := openStore(path, applyOptions(options))
	if err != nil {
		return nil, err
	}
	t, err := Create(store, degree, keySize, valueSize, options...)
	if err != nil {
		store.Close()
		return nil, err
	}
	t.ownStore = true
	return t, nil
}

// OpenFile opens the tree file at path. The tree owns the file and closes it
// on Close.
func OpenFile(path string, options ...Option) (*Tree, error) {
	store, err := openStore(path, applyOptions(options))
	if err != nil {
		return nil, err
	}
	t, err := Open(store, options...)
	if err != nil {
		store.Close()
		return nil, err
	}
	t.ownStore = true
	return t, nil
}

func openStore(path string, opts Options) (storage.Store, error) {
	if opts.mmap {
		return storage.NewMMap(path)
	}
	return storage.NewFile(path)
}

func applyOptions(options []Option) Options {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func newTree(store storage.Store, geo base.Geometry, opts Options) (*Tree, error) {
	t := &Tree{
		store:     store,
		geo:       geo,
		cmp:       opts.comparator,
		log:       opts.logger,
		syncStore: opts.syncOnSave,
	}

	capacity := opts.cacheSize
	if capacity <= 0 {
		capacity = geo.MaxLinks() + 1
	}
	c, err := cache.New(capacity, nodeWriter{t})
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	t.cache = c
	return t, nil
}

// Add inserts key/value. Duplicate keys are kept; nothing is overwritten.
func (t *Tree) Add(key, value []byte) error {
	if t.closed {
		return ErrTreeClosed
	}
	if err := base.ValidateEntry(t.geo, key, value); err != nil {
		return err
	}
	key, value = bytes.Clone(key), bytes.Clone(value)

	// Empty tree: the first leaf becomes the root
	if t.root == nil {
		root := base.NewLeaf(t.allocPage())
		root.Insert(key, value, 0)
		t.root = root
		t.height = 1
		if err := t.rebuildCache(); err != nil {
			return err
		}
		t.size++
		return nil
	}

	var parent *base.Node
	node := t.root
	for {
		// Split full nodes on the way down so the parent always has room
		if node.IsFull(t.geo.Degree) {
			res, err := t.split(parent, node)
			if err != nil {
				return err
			}
			half := res.Left
			if t.cmp(key, res.Promoted) >= 0 {
				half = res.Right
			}
			if parent == nil {
				// Root changed and the cache was rebuilt; continue on the cached copies
				parent = t.root
				if half, err = t.loadPage(half.PageID); err != nil {
					return err
				}
			} else {
				parent = res.Parent
			}
			node = half
		}

		pos := node.SearchInsertionPoint(t.cmp, key)
		if node.IsLeaf() {
			node.Insert(key, value, pos)
			if err := t.savePage(node); err != nil {
				return err
			}
			t.size++
			return nil
		}

		child, err := t.loadPage(node.Links[pos])
		if err != nil {
			return err
		}
		parent, node = node, child
	}
}

// split divides the full node below parent, or below a new root when node
// is the root, and persists every page the split touched.
func (t *Tree) split(parent, node *base.Node) (algo.SplitResult, error) {
	rootSplit := parent == nil
	if rootSplit {
		parent = algo.NewRoot(t.allocPage(), node)
	}
	right := base.NewLeaf(t.allocPage())

	res := algo.Split(t.geo.Degree, parent, node, right)
	for _, n := range res.Nodes() {
		if err := t.savePage(n); err != nil {
			return res, err
		}
	}
	for _, r := range res.Reparent {
		child, err := t.loadPage(r.Child)
		if err != nil {
			return res, fmt.Errorf("reparent page %d: %w", r.Child, err)
		}
		child.ParentID = r.Parent
		child.ParentPos = r.Position
		if err := t.savePage(child); err != nil {
			return res, err
		}
	}

	if rootSplit {
		t.root = res.Parent
		t.height++
		t.log.Info("root split", "root", t.root.PageID, "height", t.height)
		if err := t.rebuildCache(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Get returns the value of one entry stored under key. When the key has
// duplicates, which of them is returned is unspecified.
func (t *Tree) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrTreeClosed
	}
	node, pos, err := t.find(key)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(node.Values[pos]), nil
}

// Select returns a cursor over every entry stored under key. The cursor is
// exhausted in both directions when there is none.
func (t *Tree) Select(key []byte) (*Cursor, error) {
	if t.closed {
		return nil, ErrTreeClosed
	}
	node, pos, err := t.find(key)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return emptyCursor(bytes.Clone(key)), nil
	}
	return newCursor(t, bytes.Clone(key), node, pos)
}

// find descends from the root and stops at the first node holding key.
// It returns a nil node when the key is absent.
func (t *Tree) find(key []byte) (*base.Node, int, error) {
	node := t.root
	for node != nil {
		if pos := node.SearchExact(t.cmp, key); pos != base.NotFound {
			return node, pos, nil
		}
		if node.IsLeaf() {
			return nil, 0, nil
		}

		child, err := t.loadPage(node.Links[node.SearchInsertionPoint(t.cmp, key)])
		if err != nil {
			return nil, 0, err
		}
		node = child
	}
	return nil, 0, nil
}

// Save writes every dirty page and the header, then syncs the store unless
// disabled with WithSyncOnSave(false).
func (t *Tree) Save() error {
	if t.closed {
		return ErrTreeClosed
	}
	if err := t.cache.Flush(); err != nil {
		t.log.Error("cache write-back failed", "error", err)
		return fmt.Errorf("flush cache: %w", err)
	}
	if err := t.writeHeader(); err != nil {
		return err
	}
	if t.syncStore {
		if err := t.store.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}

// Close saves the tree and releases the store if the tree opened it.
// Calling Close again returns ErrTreeClosed.
func (t *Tree) Close() error {
	if t.closed {
		return ErrTreeClosed
	}

	err := t.Save()
	t.closed = true
	t.root = nil
	if t.ownStore {
		err = errors.Join(err, t.store.Close())
	}

	t.log.Info("closed tree", "entries", t.size, "pages", t.pageCount)
	return err
}

// Len returns the number of stored entries.
func (t *Tree) Len() int64 {
	return t.size
}

// Degree returns the degree the tree was created with.
func (t *Tree) Degree() int {
	return t.geo.Degree
}

// Height returns the number of levels, 0 for an empty tree.
func (t *Tree) Height() int {
	return t.height
}

func (t *Tree) writeHeader() error {
	h := base.Header{
		Size:       t.size,
		Degree:     t.geo.Degree,
		KeySize:    t.geo.KeySize,
		ValueSize:  t.geo.ValueSize,
		LinkSize:   t.geo.LinkSize,
		PageCount:  t.pageCount,
		RecordSize: t.geo.PageSize(),
		Root:       NilPage,
	}
	if t.root != nil {
		h.Root = t.root.PageID
	}
	if _, err := t.store.WriteAt(h.Encode(), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// loadPage returns the node stored in page id. The root is always served
// from memory, cached pages from the cache, everything else from storage.
func (t *Tree) loadPage(id PageID) (*base.Node, error) {
	if t.root != nil && id == t.root.PageID {
		return t.root, nil
	}
	if node, ok := t.cache.Get(id); ok {
		return node, nil
	}
	if id < 0 || int64(id) >= t.pageCount {
		return nil, fmt.Errorf("%w: page %d out of range [0, %d)", ErrCorruption, id, t.pageCount)
	}

	buf := make([]byte, t.geo.PageSize())
	if _, err := t.store.ReadAt(buf, t.geo.Offset(id)); err != nil {
		return nil, fmt.Errorf("load page %d: %w", id, err)
	}

	node := &base.Node{}
	if err := node.Deserialize(t.geo, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	if node.PageID != id {
		return nil, fmt.Errorf("%w: page %d holds page id %d", ErrCorruption, id, node.PageID)
	}
	if err := node.CheckOrder(t.cmp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	return node, nil
}

// savePage replaces the cached copy of node's page, or writes it through
// when the page is not cached.
func (t *Tree) savePage(node *base.Node) error {
	node.Dirty = true
	if t.cache.Contains(node.PageID) {
		t.cache.Put(node)
		return nil
	}
	return t.writePage(node)
}

func (t *Tree) writePage(node *base.Node) error {
	buf, err := node.Serialize(t.geo)
	if err != nil {
		return err
	}
	if _, err := t.store.WriteAt(buf, t.geo.Offset(node.PageID)); err != nil {
		return fmt.Errorf("write page %d: %w", node.PageID, err)
	}
	node.Dirty = false
	return nil
}

// allocPage hands out the next page id. The page reaches storage on its
// first save.
func (t *Tree) allocPage() PageID {
	id := PageID(t.pageCount)
	t.pageCount++
	return id
}

// rebuildCache drops every cached page and admits the root and its children.
func (t *Tree) rebuildCache() error {
	if err := t.cache.Purge(); err != nil {
		t.log.Error("cache write-back failed", "error", err)
		return fmt.Errorf("purge cache: %w", err)
	}
	if t.root == nil {
		return nil
	}

	t.cache.Put(t.root)
	if t.root.IsLeaf() {
		return nil
	}
	for _, id := range t.root.Links {
		child, err := t.loadPage(id)
		if err != nil {
			return err
		}
		t.cache.Put(child)
	}
	return nil
}

func (t *Tree) measureHeight() (int, error) {
	height := 1
	for node := t.root; !node.IsLeaf(); height++ {
		child, err := t.loadPage(node.Links[0])
		if err != nil {
			return 0, err
		}
		node = child
	}
	return height, nil
}

// nodeWriter lets the page cache write evicted pages back through the tree.
type nodeWriter struct {
	t *Tree
}

func (w nodeWriter) WriteNode(node *base.Node) error {
	return w.t.writePage(node)
}
