package quadtree

import (
	"fmt"
	"math"
)

// Bounds is an axis-aligned rectangle with MinX <= MaxX and MinY <= MaxY.
// Bounds are values; every derived rectangle is a new Bounds.
type Bounds struct{ MinX, MinY, MaxX, MaxY float64 }

// NewBounds returns the rectangle spanned by two corners in any order.
func NewBounds(x1, y1, x2, y2 float64) Bounds {
	return Bounds{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

// Around returns the square of half-size r centered on (x, y).
func Around(x, y, r float64) Bounds {
	return Bounds{x - r, y - r, x + r, y + r}
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Overlaps reports whether b and o share at least one point. Touching edges overlap.
func (b Bounds) Overlaps(o Bounds) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX && b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// Expand grows b by d on all four sides.
func (b Bounds) Expand(d float64) Bounds {
	return Bounds{b.MinX - d, b.MinY - d, b.MaxX + d, b.MaxY + d}
}

// Quadrant returns the part of b that direction dir covers when b is split at (x, y).
func (b Bounds) Quadrant(dir Direction, x, y float64) Bounds {
	switch dir {
	case NE:
		return Bounds{x, y, b.MaxX, b.MaxY}
	case SE:
		return Bounds{x, b.MinY, b.MaxX, y}
	case SW:
		return Bounds{b.MinX, b.MinY, x, y}
	case NW:
		return Bounds{b.MinX, y, x, b.MaxY}
	}
	panic(fmt.Sprintf("quadtree: bad direction %d", dir))
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Valid reports whether b is finite and correctly ordered.
func (b Bounds) Valid() bool {
	for _, v := range [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
