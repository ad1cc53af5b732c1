package idxtree

import (
	"fmt"

	"idxtree/internal/base"
	"idxtree/internal/storage"
)

// PageInfo describes one page visited by Walk. The slices belong to the tree
// and must not be modified.
type PageInfo struct {
	ID        PageID
	ParentID  PageID
	ParentPos int
	Leaf      bool
	Depth     int // 0 for the root
	Keys      [][]byte
	Values    [][]byte
	Links     []PageID
}

// Walk visits every page in pre-order, children left to right. It stops at
// the first error returned by fn.
func (t *Tree) Walk(fn func(PageInfo) error) error {
	if t.closed {
		return ErrTreeClosed
	}
	if t.root == nil {
		return nil
	}
	return t.walk(t.root, 0, fn)
}

func (t *Tree) walk(node *base.Node, depth int, fn func(PageInfo) error) error {
	info := PageInfo{
		ID:        node.PageID,
		ParentID:  node.ParentID,
		ParentPos: node.ParentPos,
		Leaf:      node.IsLeaf(),
		Depth:     depth,
		Keys:      node.Keys,
		Values:    node.Values,
		Links:     node.Links,
	}
	if err := fn(info); err != nil {
		return err
	}
	if node.IsLeaf() {
		return nil
	}

	for _, id := range node.Links {
		child, err := t.loadPage(id)
		if err != nil {
			return err
		}
		if err := t.walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Stats holds tree, cache and I/O statistics
type Stats struct {
	Entries  int64
	Pages    int64
	Height   int
	PageSize int

	CachedPages    int
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64

	// Zero when the store does not count I/O
	Reads        uint64
	Writes       uint64
	BytesRead    uint64
	BytesWritten uint64
}

// Stats returns a snapshot of the tree statistics.
func (t *Tree) Stats() Stats {
	cs := t.cache.Stats()
	s := Stats{
		Entries:        t.size,
		Pages:          t.pageCount,
		Height:         t.height,
		PageSize:       t.geo.PageSize(),
		CachedPages:    t.cache.Size(),
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		CacheEvictions: cs.Evictions,
	}
	if counted, ok := t.store.(interface{ Stats() storage.Stats }); ok {
		io := counted.Stats()
		s.Reads = io.Reads
		s.Writes = io.Writes
		s.BytesRead = io.Read
		s.BytesWritten = io.Written
	}
	return s
}

// Check verifies the structure of the whole tree: key order within and
// across pages, page capacity, link counts, parent back-references, uniform
// leaf depth and the entry count. Violations are reported as ErrInvariant.
func (t *Tree) Check() error {
	if t.closed {
		return ErrTreeClosed
	}
	if t.root == nil {
		if t.size != 0 {
			return invariantf("empty tree records %d entries", t.size)
		}
		return nil
	}
	if !t.root.IsRoot() || t.root.ParentPos != 0 {
		return invariantf("root page %d has parent %d at %d", t.root.PageID, t.root.ParentID, t.root.ParentPos)
	}

	c := checker{t: t, leafDepth: -1}
	if err := c.visit(t.root, nil, nil, 0); err != nil {
		return err
	}
	if c.entries != t.size {
		return invariantf("found %d entries, header records %d", c.entries, t.size)
	}
	if c.leafDepth+1 != t.height {
		return invariantf("leaves at depth %d, height is %d", c.leafDepth, t.height)
	}
	return nil
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

type checker struct {
	t         *Tree
	entries   int64
	leafDepth int
}

// visit checks node and its subtree. lo and hi bound its keys, nil meaning
// unbounded. Both bounds are inclusive since equal keys may sit on either
// side of a separator.
func (c *checker) visit(node *base.Node, lo, hi []byte, depth int) error {
	t := c.t
	n := node.Len()

	if err := node.CheckOrder(t.cmp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	switch {
	case n == 0:
		return invariantf("page %d is empty", node.PageID)
	case n > t.geo.MaxKeys():
		return invariantf("page %d holds %d keys, capacity %d", node.PageID, n, t.geo.MaxKeys())
	case !node.IsRoot() && n < t.geo.Degree-1:
		return invariantf("page %d holds %d keys, minimum %d", node.PageID, n, t.geo.Degree-1)
	case len(node.Links) != n+1 || len(node.Values) != n:
		return invariantf("page %d has %d keys, %d values, %d links", node.PageID, n, len(node.Values), len(node.Links))
	case lo != nil && t.cmp(node.Keys[0], lo) < 0:
		return invariantf("page %d key %q below separator %q", node.PageID, node.Keys[0], lo)
	case hi != nil && t.cmp(node.Keys[n-1], hi) > 0:
		return invariantf("page %d key %q above separator %q", node.PageID, node.Keys[n-1], hi)
	}
	c.entries += int64(n)

	if node.IsLeaf() {
		for i, id := range node.Links {
			if id != NilPage {
				return invariantf("leaf %d links to page %d at %d", node.PageID, id, i)
			}
		}
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return invariantf("leaf %d at depth %d, expected %d", node.PageID, depth, c.leafDepth)
		}
		return nil
	}

	for i, id := range node.Links {
		child, err := t.loadPage(id)
		if err != nil {
			return err
		}
		if child.ParentID != node.PageID || child.ParentPos != i {
			return invariantf("page %d points back to %d at %d, linked from %d at %d",
				child.PageID, child.ParentID, child.ParentPos, node.PageID, i)
		}

		childLo, childHi := lo, hi
		if i > 0 {
			childLo = node.Keys[i-1]
		}
		if i < n {
			childHi = node.Keys[i]
		}
		if err := c.visit(child, childLo, childHi, depth+1); err != nil {
			return err
		}
	}
	return nil
}
