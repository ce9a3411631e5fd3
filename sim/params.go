package sim

import (
	"fmt"
	"math"

	"quadarena/quadtree"
)

// Params configures a World. DefaultParams matches the classic bouncing-ball demo.
type Params struct {
	Width, Height float64

	Bodies      int     // initial body count for Scatter
	BaseRadius  float64 // radius bodies are born with and shrink back to
	MaxRadius   float64 // a body that grows past this pops
	MaxVelocity float64 // largest initial speed per axis

	Growth         float64 // radius gained per colliding tick with shrink on
	GrowthNoShrink float64 // radius gained per colliding tick with shrink off
	ShrinkRate     float64 // fraction of the excess radius lost per quiet tick
	Shrink         bool
}

func DefaultParams() Params {
	return Params{
		Width:          800,
		Height:         600,
		Bodies:         250,
		BaseRadius:     5,
		MaxRadius:      100,
		MaxVelocity:    10,
		Growth:         1,
		GrowthNoShrink: 0.1,
		ShrinkRate:     0.1,
		Shrink:         true,
	}
}

// Bounds returns the world rectangle anchored at the origin.
func (p Params) Bounds() quadtree.Bounds {
	return quadtree.Bounds{MinX: 0, MinY: 0, MaxX: p.Width, MaxY: p.Height}
}

func (p Params) Validate() error {
	finite := func(vs ...float64) bool {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}
	switch {
	case !finite(p.Width, p.Height, p.BaseRadius, p.MaxRadius, p.MaxVelocity, p.Growth, p.GrowthNoShrink, p.ShrinkRate):
		return fmt.Errorf("params must be finite")
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("world must have positive size, got %vx%v", p.Width, p.Height)
	case p.Bodies < 0:
		return fmt.Errorf("body count must not be negative")
	case p.BaseRadius < 0 || p.MaxRadius < p.BaseRadius:
		return fmt.Errorf("need 0 <= base radius (%v) <= max radius (%v)", p.BaseRadius, p.MaxRadius)
	case p.MaxVelocity < 0 || p.Growth < 0 || p.GrowthNoShrink < 0:
		return fmt.Errorf("velocity and growth must not be negative")
	case p.ShrinkRate < 0 || p.ShrinkRate > 1:
		return fmt.Errorf("shrink rate must be in [0, 1], got %v", p.ShrinkRate)
	}
	return nil
}
