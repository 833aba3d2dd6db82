package roulette

import (
	"fmt"
	"time"
)

// CubicBezier is a CSS cubic-bezier timing function with fixed end points
// (0,0) and (1,1).
type CubicBezier struct {
	X1, Y1, X2, Y2 float64
}

// CSS renders the curve as a transition timing function.
func (c CubicBezier) CSS() string {
	return fmt.Sprintf("cubic-bezier(%g, %g, %g, %g)", c.X1, c.Y1, c.X2, c.Y2)
}

func bezier(p1, p2, s float64) float64 {
	u := 1 - s
	return 3*u*u*s*p1 + 3*u*s*s*p2 + s*s*s
}

func bezierSlope(p1, p2, s float64) float64 {
	u := 1 - s
	return 3*u*u*p1 + 6*u*s*(p2-p1) + 3*s*s*(1-p2)
}

// At returns the eased progress for the elapsed fraction x in [0,1].
func (c CubicBezier) At(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	}

	// Newton first, bisection when the slope is too flat to trust.
	s := x
	for i := 0; i < 8; i++ {
		dx := bezier(c.X1, c.X2, s) - x
		if dx > -1e-7 && dx < 1e-7 {
			return bezier(c.Y1, c.Y2, s)
		}
		slope := bezierSlope(c.X1, c.X2, s)
		if slope > -1e-6 && slope < 1e-6 {
			break
		}
		s -= dx / slope
	}

	lo, hi := 0.0, 1.0
	s = x
	for i := 0; i < 64; i++ {
		v := bezier(c.X1, c.X2, s)
		if v-x > -1e-7 && v-x < 1e-7 {
			break
		}
		if v < x {
			lo = s
		} else {
			hi = s
		}
		s = (lo + hi) / 2
	}
	return bezier(c.Y1, c.Y2, s)
}

// TimeAt returns the first elapsed fraction at which the eased progress
// reaches y.
func (c CubicBezier) TimeAt(y float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < 48; i++ {
		mid := (lo + hi) / 2
		if c.At(mid) < y {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// Pattern is one timing variant of the spin deceleration. ExtraOffset shifts
// the resting position in pixels to land short of (negative) or past
// (positive) the exact target center. It never changes which slot wins.
type Pattern struct {
	Name        string
	Easing      CubicBezier
	Duration    time.Duration
	ExtraOffset float64
}

// DecelerationMark is the share of the travel distance after which a spin
// counts as decelerating.
const DecelerationMark = 0.9

// DecelerateAfter is how long after the transition starts the strip has
// covered DecelerationMark of its distance.
func (p Pattern) DecelerateAfter() time.Duration {
	return time.Duration(p.Easing.TimeAt(DecelerationMark) * float64(p.Duration))
}

// DefaultPatterns are the nine built-in deceleration variants.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "exact", Easing: CubicBezier{0.15, 0, 0.25, 1}, Duration: 5000 * time.Millisecond},
		{Name: "short-left", Easing: CubicBezier{0.12, 0, 0.20, 1}, Duration: 5500 * time.Millisecond, ExtraOffset: -55},
		{Name: "overshoot-right", Easing: CubicBezier{0.10, 0, 0.22, 1}, Duration: 5200 * time.Millisecond, ExtraOffset: 52},
		{Name: "slow-start", Easing: CubicBezier{0.05, 0, 0.18, 1}, Duration: 6500 * time.Millisecond},
		{Name: "hard-stop", Easing: CubicBezier{0.25, 0, 0.40, 1}, Duration: 4000 * time.Millisecond},
		{Name: "near-miss", Easing: CubicBezier{0.13, 0, 0.22, 1}, Duration: 5800 * time.Millisecond, ExtraOffset: -28},
		{Name: "far-overshoot", Easing: CubicBezier{0.08, 0, 0.16, 1}, Duration: 6000 * time.Millisecond, ExtraOffset: 80},
		{Name: "early-brake", Easing: CubicBezier{0.30, 0, 0.45, 1}, Duration: 3800 * time.Millisecond, ExtraOffset: -8},
		{Name: "smooth-finish", Easing: CubicBezier{0.10, 0.02, 0.20, 1}, Duration: 5600 * time.Millisecond, ExtraOffset: 15},
	}
}

// ChoosePattern picks one pattern uniformly at random.
func ChoosePattern(patterns []Pattern, rng RNG) Pattern {
	return patterns[rng.Intn(len(patterns))]
}
