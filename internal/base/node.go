package base

import (
	"fmt"
)

// NotFound is returned by SearchExact when the key is absent.
const NotFound = -1

// Node is the decoded form of one page. Both leaves and branches carry
// key/value pairs; Links always holds len(Keys)+1 entries and is all NilPage
// in a leaf.
type Node struct {
	PageID    PageID
	ParentID  PageID // NilPage for the root
	ParentPos int    // index in the parent's Links that points here
	Leaf      bool
	Dirty     bool

	Keys   [][]byte
	Values [][]byte
	Links  []PageID
}

// NewLeaf returns an empty leaf for page id.
func NewLeaf(id PageID) *Node {
	return &Node{
		PageID:   id,
		ParentID: NilPage,
		Leaf:     true,
		Dirty:    true,
		Links:    []PageID{NilPage},
	}
}

// NewBranch returns an empty branch whose only link is first.
func NewBranch(id PageID, first PageID) *Node {
	return &Node{
		PageID:   id,
		ParentID: NilPage,
		Dirty:    true,
		Links:    []PageID{first},
	}
}

// Len returns the number of stored pairs.
func (n *Node) Len() int {
	return len(n.Keys)
}

// IsLeaf returns true if this is a leaf Node
func (n *Node) IsLeaf() bool {
	return n.Leaf
}

// IsFull reports whether the node holds 2d-1 keys.
func (n *Node) IsFull(degree int) bool {
	return len(n.Keys) >= 2*degree-1
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == NilPage
}

// Insert places key/value at pos, shifting everything right of pos by one.
// The new link slot lands to the right of the pair.
func (n *Node) Insert(key, value []byte, pos int) {
	n.Keys = insertAt(n.Keys, pos, key)
	n.Values = insertAt(n.Values, pos, value)
	n.Links = insertLinkAt(n.Links, pos+1, NilPage)
	n.Dirty = true
}

// InsertWithLink places key/value at pos and link on its left. The link that
// used to sit at pos moves to pos+1 together with the rest of the tail.
func (n *Node) InsertWithLink(key, value []byte, link PageID, pos int) {
	n.Keys = insertAt(n.Keys, pos, key)
	n.Values = insertAt(n.Values, pos, value)
	n.Links = insertLinkAt(n.Links, pos, link)
	n.Dirty = true
}

// SpliceRange copies count (link, key, value) triples from source starting
// at sourceStart into n starting at destStart, followed by the trailing link
// of the range. n grows as needed.
func (n *Node) SpliceRange(source *Node, sourceStart, destStart, count int) {
	end := destStart + count
	for len(n.Keys) < end {
		n.Keys = append(n.Keys, nil)
		n.Values = append(n.Values, nil)
	}
	for len(n.Links) < end+1 {
		n.Links = append(n.Links, NilPage)
	}

	copy(n.Keys[destStart:end], source.Keys[sourceStart:sourceStart+count])
	copy(n.Values[destStart:end], source.Values[sourceStart:sourceStart+count])
	copy(n.Links[destStart:end+1], source.Links[sourceStart:sourceStart+count+1])
	n.Dirty = true
}

// Truncate discards the pairs from pos onward. Links [0, pos] are kept.
func (n *Node) Truncate(pos int) {
	clear(n.Keys[pos:])
	clear(n.Values[pos:])
	n.Keys = n.Keys[:pos]
	n.Values = n.Values[:pos]
	n.Links = n.Links[:pos+1]
	n.Dirty = true
}

// SearchExact returns the position of a pair equal to key, or NotFound.
// With duplicates in the node any matching position may be returned.
func (n *Node) SearchExact(cmp Comparator, key []byte) int {
	lo, hi := 0, len(n.Keys)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		switch c := cmp(key, n.Keys[mid]); {
		case c < 0:
			hi = mid - 1
		case c > 0:
			lo = mid + 1
		default:
			return mid
		}
	}
	return NotFound
}

// SearchInsertionPoint returns the link index key routes through: one past
// the last key that compares less than or equal to key. Equal keys therefore
// route after the run in this node.
func (n *Node) SearchInsertionPoint(cmp Comparator, key []byte) int {
	lo, hi := 0, len(n.Keys)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		if cmp(key, n.Keys[mid]) < 0 {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// CheckOrder verifies that the keys are sorted. Binary search silently
// misroutes on an unsorted page, so callers treat a failure as corruption.
func (n *Node) CheckOrder(cmp Comparator) error {
	for i := 1; i < len(n.Keys); i++ {
		if cmp(n.Keys[i-1], n.Keys[i]) > 0 {
			return fmt.Errorf("%w: page %d keys out of order at position %d", ErrUnordered, n.PageID, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := &Node{
		PageID:    n.PageID,
		ParentID:  n.ParentID,
		ParentPos: n.ParentPos,
		Leaf:      n.Leaf,
		Dirty:     n.Dirty,
		Keys:      make([][]byte, len(n.Keys)),
		Values:    make([][]byte, len(n.Values)),
		Links:     append([]PageID(nil), n.Links...),
	}
	for i := range n.Keys {
		c.Keys[i] = append([]byte(nil), n.Keys[i]...)
		c.Values[i] = append([]byte(nil), n.Values[i]...)
	}
	return c
}

// Serialize encodes the node into a fresh page record of g.PageSize() bytes.
func (n *Node) Serialize(g Geometry) ([]byte, error) {
	if len(n.Keys) > g.MaxKeys() || len(n.Values) != len(n.Keys) || len(n.Links) != len(n.Keys)+1 {
		return nil, fmt.Errorf("%w: page %d has %d keys, %d values, %d links",
			ErrPageOverflow, n.PageID, len(n.Keys), len(n.Values), len(n.Links))
	}

	buf := make([]byte, g.PageSize())
	w := &recordWriter{buf: buf}

	nodeType := int64(BranchPageFlag)
	if n.Leaf {
		nodeType = LeafPageFlag
	}
	w.number(g.LinkSize, int64(n.PageID))
	w.number(g.LinkSize, int64(n.ParentID))
	w.number(g.LinkSize, int64(n.ParentPos))
	w.number(g.LinkSize, int64(len(n.Keys)))
	w.number(g.LinkSize, nodeType)

	for i := 0; i < g.MaxKeys(); i++ {
		if i < len(n.Keys) {
			w.number(g.LinkSize, int64(n.Links[i]))
			w.bytes(g.KeySize, n.Keys[i])
			w.bytes(g.ValueSize, n.Values[i])
		} else {
			w.number(g.LinkSize, int64(NilPage))
			w.bytes(g.KeySize, nil)
			w.bytes(g.ValueSize, nil)
		}
	}
	w.number(g.LinkSize, int64(n.Links[len(n.Keys)]))

	if w.err != nil {
		return nil, fmt.Errorf("serialize page %d: %w", n.PageID, w.err)
	}
	return buf, nil
}

// Deserialize decodes a page record into the node's fields.
func (n *Node) Deserialize(g Geometry, buf []byte) error {
	if len(buf) < g.PageSize() {
		return ErrShortRecord
	}

	r := &recordReader{buf: buf}
	n.PageID = PageID(r.number(g.LinkSize))
	n.ParentID = PageID(r.number(g.LinkSize))
	n.ParentPos = int(r.number(g.LinkSize))
	size := int(r.number(g.LinkSize))
	nodeType := r.number(g.LinkSize)
	if r.err != nil {
		return fmt.Errorf("deserialize page header: %w", r.err)
	}
	if size < 0 || size > g.MaxKeys() {
		return fmt.Errorf("%w: page %d claims %d keys", ErrMalformedField, n.PageID, size)
	}
	if nodeType != LeafPageFlag && nodeType != BranchPageFlag {
		return fmt.Errorf("%w: page %d has node type %d", ErrMalformedField, n.PageID, nodeType)
	}

	n.Leaf = nodeType == LeafPageFlag
	n.Dirty = false
	n.Keys = make([][]byte, size)
	n.Values = make([][]byte, size)
	n.Links = make([]PageID, size+1)

	for i := 0; i < size; i++ {
		n.Links[i] = PageID(r.number(g.LinkSize))
		n.Keys[i] = r.bytes(g.KeySize)
		n.Values[i] = r.bytes(g.ValueSize)
	}
	// Skip the unused slots to reach the trailing link.
	r.off += (g.MaxKeys() - size) * (g.LinkSize + 1 + g.KeySize + 1 + g.ValueSize + 1)
	n.Links[size] = PageID(r.number(g.LinkSize))

	if r.err != nil {
		return fmt.Errorf("deserialize page %d: %w", n.PageID, r.err)
	}
	return nil
}

// ValidateEntry checks that key and value fit the geometry's fixed fields.
func ValidateEntry(g Geometry, key, value []byte) error {
	switch {
	case len(key) == 0:
		return ErrKeyEmpty
	case len(key) > g.KeySize:
		return ErrKeyTooLarge
	case len(value) > g.ValueSize:
		return ErrValueTooLarge
	case key[len(key)-1] == 0, len(value) > 0 && value[len(value)-1] == 0:
		return ErrPaddedField
	}
	return nil
}

func insertAt(slice [][]byte, index int, value []byte) [][]byte {
	slice = append(slice, nil)
	copy(slice[index+1:], slice[index:])
	slice[index] = value
	return slice
}

func insertLinkAt(slice []PageID, index int, id PageID) []PageID {
	slice = append(slice, NilPage)
	copy(slice[index+1:], slice[index:])
	slice[index] = id
	return slice
}
