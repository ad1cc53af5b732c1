// Package algo contains the structural edits applied to B-tree nodes.
package algo

import (
	"fmt"

	"idxtree/internal/base"
)

// Reparent is a child whose back-reference must be rewritten after a split.
type Reparent struct {
	Child    base.PageID
	Parent   base.PageID
	Position int
}

// SplitResult lists everything a split touched. Parent, Left and Right must
// be persisted and every Reparent applied before the tree is consistent.
type SplitResult struct {
	Parent   *base.Node
	Left     *base.Node
	Right    *base.Node
	Position int    // slot of the promoted pair in Parent
	Promoted []byte // key of the promoted pair
	Reparent []Reparent
}

// Nodes returns the nodes to persist.
func (r SplitResult) Nodes() []*base.Node {
	return []*base.Node{r.Parent, r.Left, r.Right}
}

// Split divides the full node child around its middle pair.
//
// With size = 2d-1 and mid = size/2, child keeps pairs [0, mid), right (an
// empty node already holding its page id) receives [mid+1, size) together
// with their links, and the pair at mid is promoted into parent at the slot
// child occupies. parent must not be full; for a root split it is a fresh
// branch whose only link is child.
//
// Right's own back-reference is set in place. Children that moved into right
// and parent links that shifted to make room are returned as Reparent
// entries, since they live in pages the caller has to load.
func Split(degree int, parent, child, right *base.Node) SplitResult {
	pos := child.ParentPos
	switch {
	case !child.IsFull(degree):
		panic(fmt.Sprintf("algo: split of page %d with %d keys", child.PageID, child.Len()))
	case parent.IsFull(degree):
		panic(fmt.Sprintf("algo: split into full parent %d", parent.PageID))
	case child.ParentID != parent.PageID || pos >= len(parent.Links) || parent.Links[pos] != child.PageID:
		panic(fmt.Sprintf("algo: page %d is not linked from parent %d at %d", child.PageID, parent.PageID, pos))
	case right.Len() != 0:
		panic(fmt.Sprintf("algo: split target %d is not empty", right.PageID))
	}

	size := child.Len()
	mid := size / 2
	rightSize := (size - 1) / 2
	key, value := child.Keys[mid], child.Values[mid]

	right.Leaf = child.Leaf
	right.SpliceRange(child, mid+1, 0, rightSize)
	child.Truncate(mid)

	parent.InsertWithLink(key, value, child.PageID, pos)
	parent.Links[pos+1] = right.PageID
	right.ParentID = parent.PageID
	right.ParentPos = pos + 1

	var reparent []Reparent
	if !right.Leaf {
		for i, id := range right.Links {
			reparent = append(reparent, Reparent{Child: id, Parent: right.PageID, Position: i})
		}
	}
	for i := pos + 2; i < len(parent.Links); i++ {
		reparent = append(reparent, Reparent{Child: parent.Links[i], Parent: parent.PageID, Position: i})
	}

	parent.Dirty = true
	child.Dirty = true
	right.Dirty = true

	return SplitResult{
		Parent:   parent,
		Left:     child,
		Right:    right,
		Position: pos,
		Promoted: key,
		Reparent: reparent,
	}
}

// NewRoot prepares a fresh branch above old so that old can be split into it.
func NewRoot(id base.PageID, old *base.Node) *base.Node {
	root := base.NewBranch(id, old.PageID)
	old.ParentID = id
	old.ParentPos = 0
	old.Dirty = true
	return root
}
