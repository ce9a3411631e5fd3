package sim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"quadarena/quadtree"
)

var ErrInvalidBody = errors.New("sim: invalid body")

// Body is a moving circle. The index stores *Body, so a body found by a
// search is the same body the world later moves.
type Body struct {
	ID       uint64
	Pos      r2.Vec
	Vel      r2.Vec
	Radius   float64
	Collided bool // set by the last Step that found it in a collision
}

// NewBody returns a body at (x, y) moving by (vx, vy) per tick.
func NewBody(x, y, vx, vy, radius float64) *Body {
	return &Body{Pos: r2.Vec{X: x, Y: y}, Vel: r2.Vec{X: vx, Y: vy}, Radius: radius}
}

func (b *Body) X() float64 { return b.Pos.X }
func (b *Body) Y() float64 { return b.Pos.Y }

// Next returns where the body will be after one more tick, ignoring walls.
func (b *Body) Next() r2.Vec { return r2.Add(b.Pos, b.Vel) }

// Validate rejects bodies that would corrupt the index or the physics.
func (b *Body) Validate() error {
	if math.IsNaN(b.Radius) || math.IsInf(b.Radius, 0) || b.Radius < 0 {
		return fmt.Errorf("%w: radius %v", ErrInvalidBody, b.Radius)
	}
	for _, v := range [4]float64{b.Pos.X, b.Pos.Y, b.Vel.X, b.Vel.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite position or velocity %v %v", ErrInvalidBody, b.Pos, b.Vel)
		}
	}
	return nil
}

// CheckCollision checks if two circles overlap (touching counts).
func CheckCollision(p, q r2.Vec, rp, rq float64) bool {
	radSum := rp + rq
	return r2.Norm2(r2.Sub(q, p)) <= radSum*radSum
}

// WillCollide reports whether a and b overlap once both have moved one tick.
func WillCollide(a, b *Body) bool {
	return CheckCollision(a.Next(), b.Next(), a.Radius, b.Radius)
}

// integrate bounces the body off any wall it touches while heading into it,
// then moves it one tick and keeps its center inside the world.
func (b *Body) integrate(w quadtree.Bounds) {
	if (b.Pos.X-b.Radius <= w.MinX && b.Vel.X < 0) || (b.Pos.X+b.Radius >= w.MaxX && b.Vel.X > 0) {
		b.Vel.X = -b.Vel.X
	}
	if (b.Pos.Y-b.Radius <= w.MinY && b.Vel.Y < 0) || (b.Pos.Y+b.Radius >= w.MaxY && b.Vel.Y > 0) {
		b.Vel.Y = -b.Vel.Y
	}
	b.Pos = r2.Add(b.Pos, b.Vel)
	b.Pos.X = clamp(b.Pos.X, w.MinX, w.MaxX)
	b.Pos.Y = clamp(b.Pos.Y, w.MinY, w.MaxY)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
