package idxtree

import (
	"bytes"

	"idxtree/internal/base"
)

// walkState says what a walker is positioned on.
type walkState uint8

const (
	atLeaf   walkState = iota // an entry stored in a leaf
	atBranch                  // an entry stored in a branch
	bof                       // before the first entry; node/pos keep that entry
	eof                       // after the last entry; node/pos keep that entry
)

// walker is a position in the in-order sequence of every entry in the tree.
// It is a value: each step returns a new walker and leaves the old one
// intact, so a failed or peeked step costs nothing to undo.
type walker struct {
	t     *Tree
	node  *base.Node
	pos   int
	state walkState
}

func (w walker) onEntry() bool {
	return w.state == atLeaf || w.state == atBranch
}

func (w walker) key() []byte {
	return w.node.Keys[w.pos]
}

func entryState(n *base.Node) walkState {
	if n.IsLeaf() {
		return atLeaf
	}
	return atBranch
}

// next moves to the following entry.
func (w walker) next() (walker, error) {
	switch w.state {
	case eof:
		return w, nil
	case bof:
		if w.node != nil {
			w.state = entryState(w.node)
		}
		return w, nil
	case atBranch:
		// The branch pair is behind us; the smallest entry of the right subtree is next
		child, err := w.t.loadPage(w.node.Links[w.pos+1])
		if err != nil {
			return w, err
		}
		leaf, err := w.t.leftmost(child)
		if err != nil {
			return w, err
		}
		return walker{t: w.t, node: leaf, pos: 0, state: atLeaf}, nil
	}

	if w.pos+1 < w.node.Len() {
		w.pos++
		return w, nil
	}

	// Leaf exhausted: climb to the first ancestor with a pair to the right of us
	for n := w.node; !n.IsRoot(); {
		parent, err := w.t.loadPage(n.ParentID)
		if err != nil {
			return w, err
		}
		if n.ParentPos < parent.Len() {
			return walker{t: w.t, node: parent, pos: n.ParentPos, state: atBranch}, nil
		}
		n = parent
	}
	w.state = eof
	return w, nil
}

// prev moves to the preceding entry.
func (w walker) prev() (walker, error) {
	switch w.state {
	case bof:
		return w, nil
	case eof:
		if w.node != nil {
			w.state = entryState(w.node)
		}
		return w, nil
	case atBranch:
		child, err := w.t.loadPage(w.node.Links[w.pos])
		if err != nil {
			return w, err
		}
		leaf, err := w.t.rightmost(child)
		if err != nil {
			return w, err
		}
		return walker{t: w.t, node: leaf, pos: leaf.Len() - 1, state: atLeaf}, nil
	}

	if w.pos > 0 {
		w.pos--
		return w, nil
	}

	for n := w.node; !n.IsRoot(); {
		parent, err := w.t.loadPage(n.ParentID)
		if err != nil {
			return w, err
		}
		if n.ParentPos-1 >= 0 {
			return walker{t: w.t, node: parent, pos: n.ParentPos - 1, state: atBranch}, nil
		}
		n = parent
	}
	w.state = bof
	return w, nil
}

// leftmost follows first links from n down to a leaf.
func (t *Tree) leftmost(n *base.Node) (*base.Node, error) {
	for !n.IsLeaf() {
		child, err := t.loadPage(n.Links[0])
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

// rightmost follows last links from n down to a leaf.
func (t *Tree) rightmost(n *base.Node) (*base.Node, error) {
	for !n.IsLeaf() {
		child, err := t.loadPage(n.Links[n.Len()])
		if err != nil {
			return nil, err
		}
		n = child
	}
	return n, nil
}

// Cursor iterates over the entries stored under one key, in either
// direction. Like a list iterator it sits between entries: Next returns the
// entry after the cursor and Previous the one before it, so Next followed by
// Previous yields the same entry twice.
//
// The order of entries within the run is unspecified. A Cursor is invalid
// once the tree is modified.
type Cursor struct {
	key []byte
	w   walker // entry Next would return
	err error  // first traversal failure
}

func emptyCursor(key []byte) *Cursor {
	return &Cursor{key: key, w: walker{state: eof}}
}

// newCursor positions a cursor on the first entry of the run containing
// node.Keys[pos].
func newCursor(t *Tree, key []byte, node *base.Node, pos int) (*Cursor, error) {
	c := &Cursor{
		key: key,
		w:   walker{t: t, node: node, pos: pos, state: entryState(node)},
	}

	// Rewind to the start of the run
	for {
		p, err := c.w.prev()
		if err != nil {
			return nil, err
		}
		if !c.matches(p) {
			return c, nil
		}
		c.w = p
	}
}

func (c *Cursor) matches(w walker) bool {
	return w.onEntry() && w.t.cmp(w.key(), c.key) == 0
}

// Key returns the key the cursor was selected with.
func (c *Cursor) Key() []byte {
	return c.key
}

// Err returns the first error met while moving the cursor.
func (c *Cursor) Err() error {
	return c.err
}

// HasNext reports whether Next would return an entry.
func (c *Cursor) HasNext() bool {
	return c.err == nil && c.matches(c.w)
}

// Next returns the value after the cursor and advances past it.
func (c *Cursor) Next() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if !c.matches(c.w) {
		return nil, ErrCursorExhausted
	}
	if c.w.t.closed {
		return nil, ErrTreeClosed
	}

	value := bytes.Clone(c.w.node.Values[c.w.pos])
	w, err := c.w.next()
	if err != nil {
		c.err = err
		return nil, err
	}
	c.w = w
	return value, nil
}

// HasPrevious reports whether Previous would return an entry. A traversal
// failure while looking makes it return false and is kept in Err.
func (c *Cursor) HasPrevious() bool {
	if c.err != nil || c.w.node == nil {
		return false
	}
	p, err := c.w.prev()
	if err != nil {
		c.err = err
		return false
	}
	return c.matches(p)
}

// Previous moves the cursor back by one entry and returns its value.
func (c *Cursor) Previous() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.w.node == nil {
		return nil, ErrCursorExhausted
	}
	if c.w.t.closed {
		return nil, ErrTreeClosed
	}

	p, err := c.w.prev()
	if err != nil {
		c.err = err
		return nil, err
	}
	if !c.matches(p) {
		return nil, ErrCursorExhausted
	}
	c.w = p
	return bytes.Clone(p.node.Values[p.pos]), nil
}

// ForEach calls fn with every remaining value in forward order. It stops at
// the first error returned by fn or by the traversal.
func (c *Cursor) ForEach(fn func(value []byte) error) error {
	for c.HasNext() {
		value, err := c.Next()
		if err != nil {
			return err
		}
		if err := fn(value); err != nil {
			return err
		}
	}
	return c.err
}
