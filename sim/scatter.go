package sim

import "math/rand/v2"

// Scatter returns n fresh bodies of BaseRadius placed uniformly inside the
// world, each velocity component a nonzero whole number in [-MaxVelocity, MaxVelocity].
func Scatter(rng *rand.Rand, p Params, n int) []*Body {
	bodies := make([]*Body, n)
	for i := range bodies {
		bodies[i] = RandomBody(rng, p)
	}
	return bodies
}

// RandomBody returns one body as Scatter would make it.
func RandomBody(rng *rand.Rand, p Params) *Body {
	r := p.BaseRadius
	x := span(rng, r, p.Width-r)
	y := span(rng, r, p.Height-r)
	return NewBody(x, y, speed(rng, p.MaxVelocity), speed(rng, p.MaxVelocity), r)
}

func span(rng *rand.Rand, lo, hi float64) float64 {
	if hi <= lo {
		return (lo + hi) / 2
	}
	return lo + rng.Float64()*(hi-lo)
}

func speed(rng *rand.Rand, limit float64) float64 {
	m := int(limit)
	if m < 1 {
		return 0
	}
	v := rng.IntN(2*m) - m // [-m, m-1]
	if v >= 0 {
		v++ // skip 0
	}
	return float64(v)
}
