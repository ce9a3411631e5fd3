// Package quadtree implements a point quadtree over a fixed 2-D region.
//
// Every inserted point becomes a node. A new point descends from the root by
// comparing against each node's coordinates until it finds an empty child
// slot, and the node placed there records the part of its parent's rectangle
// on that side of the parent's point. Region searches use those rectangles to
// skip subtrees that cannot hold a match.
//
// The tree has no removal. Callers with moving points build a new tree (or
// Reset the old one) each time the points move.
package quadtree

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidPoint = errors.New("quadtree: non-finite point")
	ErrOutOfBounds  = errors.New("quadtree: point outside tree bounds")
)

// Point is anything with a position that can be told apart from other items.
type Point interface {
	comparable
	X() float64
	Y() float64
}

// Direction names the four child slots of a node.
type Direction uint8

const (
	NE Direction = iota // x >= px, y >= py
	SE                  // x > px, y < py
	SW                  // x <= px, y <= py
	NW                  // x < px, y > py
)

func (d Direction) String() string {
	switch d {
	case NE:
		return "NE"
	case SE:
		return "SE"
	case SW:
		return "SW"
	case NW:
		return "NW"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// direction picks the child slot of the node at (px, py) that (x, y) descends into.
// Ties on both axes go NE before SW; the order of the cases matters because the
// rectangle split in Bounds.Quadrant assumes it.
func direction(px, py, x, y float64) Direction {
	switch {
	case x >= px && y >= py:
		return NE
	case x <= px && y <= py:
		return SW
	case x > px:
		return SE
	case y > py:
		return NW
	}
	panic(fmt.Sprintf("quadtree: no quadrant for (%v, %v) against (%v, %v)", x, y, px, py))
}

// empty marks an unused child slot. The root lives at index 0 and is never
// anybody's child, so 0 is free to mean "no child".
const empty = 0

type node[P Point] struct {
	x, y     float64
	item     P
	bbox     Bounds
	children [4]int32
}

// Tree is a point quadtree. The zero value is not usable; call New.
// A Tree is not safe for concurrent writes. Concurrent searches are fine.
type Tree[P Point] struct {
	bounds Bounds
	nodes  []node[P]
}

// New returns an empty tree covering b.
func New[P Point](b Bounds) *Tree[P] {
	return &Tree[P]{bounds: b}
}

// Reset empties the tree and sets new bounds, keeping the node storage.
func (t *Tree[P]) Reset(b Bounds) {
	clear(t.nodes)
	t.nodes = t.nodes[:0]
	t.bounds = b
}

// Bounds returns the region the tree was built for.
func (t *Tree[P]) Bounds() Bounds { return t.bounds }

// Len returns the number of stored points.
func (t *Tree[P]) Len() int { return len(t.nodes) }

// InsertItem adds item at its own position.
func (t *Tree[P]) InsertItem(item P) error {
	return t.Insert(item.X(), item.Y(), item)
}

// Insert adds item at (x, y). Points must be finite and inside the tree bounds,
// otherwise the stored rectangles would no longer cover their subtrees.
func (t *Tree[P]) Insert(x, y float64, item P) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidPoint, x, y)
	}
	if !t.bounds.Contains(x, y) {
		return fmt.Errorf("%w: %v does not contain (%v, %v)", ErrOutOfBounds, t.bounds, x, y)
	}
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node[P]{x: x, y: y, item: item, bbox: t.bounds})
		return nil
	}

	i := int32(0)
	for {
		n := &t.nodes[i]
		dir := direction(n.x, n.y, x, y)
		if c := n.children[dir]; c != empty {
			i = c
			continue
		}
		bbox := n.bbox.Quadrant(dir, n.x, n.y)
		n.children[dir] = int32(len(t.nodes))
		t.nodes = append(t.nodes, node[P]{x: x, y: y, item: item, bbox: bbox})
		return nil
	}
}

// Search returns every item whose point lies inside box. Result order is unspecified.
func (t *Tree[P]) Search(box Bounds) []P {
	return t.appendSearch(nil, box, nil)
}

// SearchExcept is Search without exclude, so a query around an item skips the item itself.
func (t *Tree[P]) SearchExcept(box Bounds, exclude P) []P {
	return t.appendSearch(nil, box, &exclude)
}

// SearchExceptBuf appends the results of SearchExcept to buf and returns the
// extended slice, avoiding per-call allocation.
func (t *Tree[P]) SearchExceptBuf(box Bounds, exclude P, buf []P) []P {
	return t.appendSearch(buf, box, &exclude)
}

func (t *Tree[P]) appendSearch(buf []P, box Bounds, exclude *P) []P {
	if len(t.nodes) == 0 {
		return buf
	}
	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[i]
		if box.Contains(n.x, n.y) && (exclude == nil || n.item != *exclude) {
			buf = append(buf, n.item)
		}
		for _, c := range n.children {
			if c != empty && box.Overlaps(t.nodes[c].bbox) {
				stack = append(stack, c)
			}
		}
	}
	return buf
}

// Node is a read-only view of one tree node, handed out by Walk.
type Node[P Point] struct {
	X, Y  float64
	Item  P
	BBox  Bounds
	Depth int
}

// Walk visits nodes in pre-order (a node, then its NE, SE, SW, NW subtrees)
// until fn returns false.
func (t *Tree[P]) Walk(fn func(Node[P]) bool) {
	if len(t.nodes) == 0 {
		return
	}
	type entry struct {
		i     int32
		depth int
	}
	stack := []entry{{0, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[e.i]
		if !fn(Node[P]{X: n.x, Y: n.y, Item: n.item, BBox: n.bbox, Depth: e.depth}) {
			return
		}
		for d := len(n.children) - 1; d >= 0; d-- {
			if c := n.children[d]; c != empty {
				stack = append(stack, entry{c, e.depth + 1})
			}
		}
	}
}

// BBoxes returns the stored rectangle of every node, in insertion order.
func (t *Tree[P]) BBoxes() []Bounds {
	out := make([]Bounds, len(t.nodes))
	for i := range t.nodes {
		out[i] = t.nodes[i].bbox
	}
	return out
}

// Depth returns the number of levels in the tree; 0 for an empty tree.
func (t *Tree[P]) Depth() int {
	depth := 0
	t.Walk(func(n Node[P]) bool {
		depth = max(depth, n.Depth+1)
		return true
	})
	return depth
}
