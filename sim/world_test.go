package sim

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"quadarena/quadtree"
)

func newWorld(t *testing.T, p Params, bodies ...*Body) *World {
	t.Helper()
	w, err := NewWorld(p, bodies)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	return w
}

func step(t *testing.T, w *World) StepReport {
	t.Helper()
	rep, err := w.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return rep
}

func TestHeadOnPairSwapsVelocities(t *testing.T) {
	p := DefaultParams()
	a := NewBody(100, 100, 5, 0, 5)
	b := NewBody(110, 100, -5, 0, 5)
	w := newWorld(t, p, a, b)

	rep := step(t, w)

	if !a.Collided || !b.Collided {
		t.Fatal("both bodies should be flagged collided")
	}
	if a.Vel != (r2.Vec{X: -5, Y: 0}) || b.Vel != (r2.Vec{X: 5, Y: 0}) {
		t.Errorf("velocities should swap, got a=%v b=%v", a.Vel, b.Vel)
	}
	if rep.Collisions != 1 {
		t.Errorf("expected 1 colliding pair, got %d", rep.Collisions)
	}
	if a.Radius != 6 || b.Radius != 6 {
		t.Errorf("colliding bodies should grow by 1, got %v and %v", a.Radius, b.Radius)
	}
	if a.Pos.X != 95 || b.Pos.X != 115 {
		t.Errorf("bodies should move apart after the swap, got %v and %v", a.Pos, b.Pos)
	}
}

func TestChainedContactsSwapInDetectOrder(t *testing.T) {
	p := DefaultParams()
	a := NewBody(100, 100, 1, 0, 5)
	b := NewBody(110, 100, 0, 0, 5)
	c := NewBody(120, 100, -1, 0, 5)
	w := newWorld(t, p, a, b, c)

	// replay the swaps in Detect order, once per pair
	vel := map[uint64]r2.Vec{a.ID: a.Vel, b.ID: b.Vel, c.ID: c.Vel}
	done := map[[2]uint64]bool{}
	for _, ct := range w.Detect() {
		k := [2]uint64{min(ct.A.ID, ct.B.ID), max(ct.A.ID, ct.B.ID)}
		if done[k] {
			continue
		}
		done[k] = true
		vel[ct.A.ID], vel[ct.B.ID] = vel[ct.B.ID], vel[ct.A.ID]
	}

	rep := step(t, w)
	if rep.Collisions != 2 {
		t.Fatalf("expected 2 colliding pairs, got %d", rep.Collisions)
	}
	for _, body := range []*Body{a, b, c} {
		if body.Vel != vel[body.ID] {
			t.Errorf("body %d: vel %v, want %v", body.ID, body.Vel, vel[body.ID])
		}
	}
	// a meets b first, then b meets c: the middle body ends up with c's velocity
	if a.Vel != (r2.Vec{}) || b.Vel != (r2.Vec{X: -1}) || c.Vel != (r2.Vec{X: 1}) {
		t.Errorf("got a=%v b=%v c=%v", a.Vel, b.Vel, c.Vel)
	}
}

func TestBoundaryReflection(t *testing.T) {
	p := DefaultParams()
	const eps = 1e-3
	b := NewBody(p.Width-eps, 300, 4, 0, 5)
	w := newWorld(t, p, b)

	step(t, w)

	if b.Vel.X >= 0 {
		t.Errorf("x velocity should flip at the right wall, got %v", b.Vel.X)
	}
	if b.Pos.X < 0 || b.Pos.X > p.Width {
		t.Errorf("body left the world: %v", b.Pos)
	}

	// both walls in the same tick
	c := NewBody(1, 1, -3, -3, 5)
	w = newWorld(t, p, c)
	step(t, w)
	if c.Vel != (r2.Vec{X: 3, Y: 3}) {
		t.Errorf("corner hit should flip both components, got %v", c.Vel)
	}
	if !w.Bounds().Contains(c.X(), c.Y()) {
		t.Errorf("body left the world: %v", c.Pos)
	}
}

func TestBodyLeavingWallIsNotFlippedBack(t *testing.T) {
	p := DefaultParams()
	b := NewBody(2, 300, 3, 0, 5) // overlapping the left wall, already heading away
	w := newWorld(t, p, b)
	step(t, w)
	if b.Vel.X != 3 || b.Pos.X != 5 {
		t.Errorf("body moving away from a wall should keep going, got pos %v vel %v", b.Pos, b.Vel)
	}
}

func TestDetectIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	p := DefaultParams()
	for cfg := 0; cfg < 20; cfg++ {
		w := newWorld(t, p, Scatter(rng, p, 300)...)
		for tick := 0; tick < 5; tick++ {
			found := map[[2]uint64]bool{}
			for _, c := range w.Detect() {
				found[[2]uint64{c.A.ID, c.B.ID}] = true
			}
			for k := range found {
				if !found[[2]uint64{k[1], k[0]}] {
					t.Fatalf("config %d tick %d: %d hit %d but not the other way", cfg, tick, k[0], k[1])
				}
			}
			step(t, w)
		}
	}
}

func TestDetectMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	p := DefaultParams()
	w := newWorld(t, p, Scatter(rng, p, 250)...)
	for tick := 0; tick < 10; tick++ {
		got := map[[2]uint64]bool{}
		for _, c := range w.Detect() {
			got[[2]uint64{c.A.ID, c.B.ID}] = true
		}
		bodies := w.Bodies()
		for _, a := range bodies {
			for _, b := range bodies {
				if a == b || !WillCollide(a, b) {
					continue
				}
				// only neighbours inside the query box are guaranteed to be found
				if math.Abs(a.X()-b.X()) <= w.QueryMargin() && math.Abs(a.Y()-b.Y()) <= w.QueryMargin() {
					if !got[[2]uint64{a.ID, b.ID}] {
						t.Fatalf("tick %d: missed contact %d -> %d", tick, a.ID, b.ID)
					}
				}
			}
		}
		step(t, w)
	}
}

func TestGrowAndPop(t *testing.T) {
	p := DefaultParams()
	p.MaxRadius = 7
	// two bodies sitting on top of each other keep colliding
	a := NewBody(400, 300, 0, 0, 5)
	b := NewBody(401, 300, 0, 0, 5)
	w := newWorld(t, p, a, b)

	step(t, w) // 6
	step(t, w) // 7
	if w.Len() != 2 {
		t.Fatalf("bodies at max radius should still be live, got %d", w.Len())
	}
	rep := step(t, w) // 8 > 7 pops
	if len(rep.Popped) != 2 || w.Len() != 0 || rep.Live != 0 {
		t.Fatalf("both bodies should pop, popped %d live %d", len(rep.Popped), w.Len())
	}
	if w.Tree().Len() != 0 {
		t.Error("popped bodies must not be reindexed")
	}

	// the empty world keeps ticking
	rep = step(t, w)
	if rep.Live != 0 || rep.Collisions != 0 {
		t.Errorf("empty world should report nothing, got %+v", rep)
	}
}

func TestShrinkTowardBase(t *testing.T) {
	p := DefaultParams()
	b := NewBody(400, 300, 0, 0, 25)
	w := newWorld(t, p, b)
	step(t, w)
	if want := 25 - (25-5)*0.1; math.Abs(b.Radius-want) > 1e-9 {
		t.Errorf("radius should shrink to %v, got %v", want, b.Radius)
	}

	w.SetShrink(false)
	r := b.Radius
	step(t, w)
	if b.Radius != r {
		t.Errorf("radius should hold with shrink off, got %v want %v", b.Radius, r)
	}
}

func TestSlowGrowthWithShrinkOff(t *testing.T) {
	p := DefaultParams()
	p.Shrink = false
	a := NewBody(400, 300, 0, 0, 5)
	b := NewBody(402, 300, 0, 0, 5)
	newWorld(t, p, a, b).Step()
	if math.Abs(a.Radius-5.1) > 1e-9 {
		t.Errorf("growth with shrink off should be 0.1, got radius %v", a.Radius)
	}
}

func TestQueriesUsePreviousIndex(t *testing.T) {
	p := DefaultParams()
	a := NewBody(100, 100, 0, 0, 5)
	w := newWorld(t, p, a)
	old := w.Tree()
	step(t, w)
	if w.Tree() == old {
		t.Error("each tick should build a fresh index")
	}
	if got := w.Tree().Search(w.Bounds()); len(got) != 1 || got[0] != a {
		t.Errorf("index should hold the live body itself, got %v", got)
	}
}

func TestReindexReusesSpareTree(t *testing.T) {
	p := DefaultParams()
	a := NewBody(100, 100, 3, 0, 5)
	b := NewBody(400, 300, 0, -2, 5)
	w := newWorld(t, p, a, b)
	first := w.Tree()
	step(t, w)
	step(t, w)
	if w.Tree() != first {
		t.Fatal("the tree from two ticks ago should be reset and reused")
	}
	if w.Tree().Len() != 2 {
		t.Fatalf("expected 2 indexed bodies, got %d", w.Tree().Len())
	}
	// the reused tree holds the current positions, not stale ones
	got := w.Tree().Search(quadtree.Around(a.X(), a.Y(), 0))
	if len(got) != 1 || got[0] != a || a.X() != 106 {
		t.Errorf("expected body a at x=106, got %v (a at %v)", got, a.Pos)
	}
	if hits := w.Tree().Search(quadtree.Around(100, 100, 0)); len(hits) != 0 {
		t.Errorf("stale entry left at the starting position: %v", hits)
	}
}

func TestInvalidBody(t *testing.T) {
	p := DefaultParams()
	for _, b := range []*Body{
		NewBody(10, 10, 0, 0, -1),
		NewBody(math.NaN(), 10, 0, 0, 5),
		NewBody(10, 10, math.Inf(1), 0, 5),
		NewBody(-50, 10, 0, 0, 5),
	} {
		if _, err := NewWorld(p, []*Body{b}); !errors.Is(err, ErrInvalidBody) {
			t.Errorf("expected ErrInvalidBody for %+v, got %v", b, err)
		}
	}
}

func TestScaleSpeed(t *testing.T) {
	p := DefaultParams()
	b := NewBody(400, 300, 4, -8, 5)
	w := newWorld(t, p, b)
	if err := w.ScaleSpeed(1.25); err != nil {
		t.Fatal(err)
	}
	if b.Vel != (r2.Vec{X: 5, Y: -10}) {
		t.Errorf("velocity should scale, got %v", b.Vel)
	}
	if w.QueryMargin() != p.MaxRadius+p.MaxVelocity*1.25 {
		t.Errorf("query margin should follow the speed cap, got %v", w.QueryMargin())
	}
	if err := w.ScaleSpeed(0); err == nil {
		t.Error("zero factor should be rejected")
	}
}

func TestRemoveLast(t *testing.T) {
	p := DefaultParams()
	a, b := NewBody(100, 100, 1, 1, 5), NewBody(200, 200, 1, 1, 5)
	w := newWorld(t, p, a, b)
	if got := w.RemoveLast(); got != b {
		t.Fatalf("expected newest body, got %+v", got)
	}
	if w.Len() != 1 || w.Tree().Len() != 1 {
		t.Errorf("removed body should leave the world and the index")
	}
	w.RemoveLast()
	if w.RemoveLast() != nil {
		t.Error("removing from an empty world should return nil")
	}
}

func TestScatter(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	p := DefaultParams()
	for _, b := range Scatter(rng, p, 500) {
		if !p.Bounds().Contains(b.X(), b.Y()) {
			t.Fatalf("body outside world: %v", b.Pos)
		}
		if b.Vel.X == 0 || b.Vel.Y == 0 || math.Abs(b.Vel.X) > p.MaxVelocity || math.Abs(b.Vel.Y) > p.MaxVelocity {
			t.Fatalf("bad velocity %v", b.Vel)
		}
		if b.Vel.X != math.Trunc(b.Vel.X) {
			t.Fatalf("velocity components should be whole numbers, got %v", b.Vel)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	bad := DefaultParams()
	bad.MaxRadius = 1
	if bad.Validate() == nil {
		t.Error("max radius below base radius should be rejected")
	}
	bad = DefaultParams()
	bad.Width = 0
	if _, err := NewWorld(bad, nil); err == nil {
		t.Error("zero width should be rejected")
	}
}
