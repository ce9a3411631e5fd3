// Package sim steps a set of bouncing circles that find each other through a
// quadtree rebuilt every tick.
package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"quadarena/quadtree"
)

// Contact is one detected collision, seen from A's query.
type Contact struct{ A, B *Body }

// StepReport summarizes one tick.
type StepReport struct {
	Tick       uint64
	Collisions int     // distinct colliding pairs
	Popped     []*Body // bodies that grew past MaxRadius and were dropped
	Live       int
}

// World holds the live bodies and the index built from their positions at the
// end of the previous tick. A World is not safe for concurrent use.
//
// Two trees alternate: each reindex resets the spare one and swaps it in, so a
// tree returned by Tree stays valid for one Step and is reused by the next.
type World struct {
	params   Params
	bounds   quadtree.Bounds
	bodies   []*Body
	tree     *quadtree.Tree[*Body]
	spare    *quadtree.Tree[*Body]
	tick     uint64
	nextID   uint64
	shrink   bool
	speedCap float64
	buf      []*Body
}

// NewWorld validates p, adds bodies in order, and indexes them.
func NewWorld(p Params, bodies []*Body) (*World, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		params:   p,
		bounds:   p.Bounds(),
		shrink:   p.Shrink,
		speedCap: p.MaxVelocity,
		tree:     quadtree.New[*Body](p.Bounds()),
		spare:    quadtree.New[*Body](p.Bounds()),
	}
	for _, b := range bodies {
		if err := w.Add(b); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *World) Params() Params { return w.params }
func (w *World) Bounds() quadtree.Bounds { return w.bounds }
func (w *World) Tree() *quadtree.Tree[*Body] { return w.tree }
func (w *World) Tick() uint64 { return w.tick }
func (w *World) Shrink() bool { return w.shrink }
func (w *World) SetShrink(on bool) { w.shrink = on }
func (w *World) Len() int { return len(w.bodies) }

// Bodies returns the live generation. Callers must not modify the slice.
func (w *World) Bodies() []*Body { return w.bodies }

// Add assigns b an ID, makes it live, and indexes it right away.
func (w *World) Add(b *Body) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if !w.bounds.Contains(b.X(), b.Y()) {
		return fmt.Errorf("%w: (%v, %v) outside %v", ErrInvalidBody, b.X(), b.Y(), w.bounds)
	}
	w.nextID++
	b.ID = w.nextID
	if err := w.tree.InsertItem(b); err != nil {
		return err
	}
	w.bodies = append(w.bodies, b)
	w.speedCap = math.Max(w.speedCap, math.Max(math.Abs(b.Vel.X), math.Abs(b.Vel.Y)))
	return nil
}

// RemoveLast drops the most recently added body and returns it, or nil.
func (w *World) RemoveLast() *Body {
	if len(w.bodies) == 0 {
		return nil
	}
	last := w.bodies[len(w.bodies)-1]
	next := make([]*Body, len(w.bodies)-1)
	copy(next, w.bodies)
	w.bodies = next
	// positions did not move, so this cannot fail
	_ = w.reindex()
	return last
}

// ScaleSpeed multiplies every velocity by f.
func (w *World) ScaleSpeed(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return fmt.Errorf("speed factor must be positive and finite, got %v", f)
	}
	for _, b := range w.bodies {
		b.Vel = r2.Scale(f, b.Vel)
	}
	w.speedCap *= f
	return nil
}

// QueryMargin is how far around a body Detect looks for neighbours: the
// largest body size plus the largest speed on either axis.
func (w *World) QueryMargin() float64 {
	return w.params.MaxRadius + w.speedCap
}

// Detect finds every body that will overlap a neighbour after one more tick.
// It only reads the world. A pair is reported from both sides: if (a, b) is in
// the result so is (b, a).
func (w *World) Detect() []Contact {
	var contacts []Contact
	margin := w.QueryMargin()
	for _, b := range w.bodies {
		w.buf = w.tree.SearchExceptBuf(quadtree.Around(b.X(), b.Y(), margin), b, w.buf[:0])
		for _, n := range w.buf {
			if WillCollide(b, n) {
				contacts = append(contacts, Contact{A: b, B: n})
			}
		}
	}
	clear(w.buf)
	return contacts
}

// Step advances the world one tick: detect against the previous index, swap
// velocities of colliding pairs, grow or shrink, move, and reindex.
func (w *World) Step() (StepReport, error) {
	w.tick++
	rep := StepReport{Tick: w.tick}

	for _, b := range w.bodies {
		b.Collided = false
	}

	type pairKey struct{ lo, hi uint64 }
	seen := make(map[pairKey]bool)
	for _, c := range w.Detect() {
		k := pairKey{c.A.ID, c.B.ID}
		if k.lo > k.hi {
			k.lo, k.hi = k.hi, k.lo
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		c.A.Collided, c.B.Collided = true, true
		c.A.Vel, c.B.Vel = c.B.Vel, c.A.Vel
	}
	rep.Collisions = len(seen)

	growth := w.params.Growth
	if !w.shrink {
		growth = w.params.GrowthNoShrink
	}
	next := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		if b.Collided {
			b.Radius += growth
			if b.Radius > w.params.MaxRadius {
				rep.Popped = append(rep.Popped, b)
				continue
			}
		} else if w.shrink && b.Radius > w.params.BaseRadius {
			b.Radius -= (b.Radius - w.params.BaseRadius) * w.params.ShrinkRate
		}
		b.integrate(w.bounds)
		next = append(next, b)
	}
	w.bodies = next
	rep.Live = len(next)

	if err := w.reindex(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (w *World) reindex() error {
	tree := w.spare
	tree.Reset(w.bounds)
	for _, b := range w.bodies {
		if err := tree.InsertItem(b); err != nil {
			return fmt.Errorf("reindex body %d: %w", b.ID, err)
		}
	}
	w.tree, w.spare = tree, w.tree
	return nil
}
