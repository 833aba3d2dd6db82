package roulette

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCubicBezier_Endpoints(t *testing.T) {
	for _, p := range DefaultPatterns() {
		assert.Equal(t, 0.0, p.Easing.At(0), p.Name)
		assert.Equal(t, 1.0, p.Easing.At(1), p.Name)
		assert.Equal(t, 0.0, p.Easing.At(-1), p.Name)
		assert.Equal(t, 1.0, p.Easing.At(2), p.Name)
	}
}

func TestCubicBezier_LinearCurve(t *testing.T) {
	linear := CubicBezier{0, 0, 1, 1}
	for _, x := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
		assert.InDelta(t, x, linear.At(x), 1e-5)
	}
}

func TestCubicBezier_EaseOutIsMonotonic(t *testing.T) {
	for _, p := range DefaultPatterns() {
		prev := 0.0
		for i := 1; i <= 100; i++ {
			y := p.Easing.At(float64(i) / 100)
			assert.GreaterOrEqual(t, y+1e-9, prev, "%s not monotonic at %d", p.Name, i)
			prev = y
		}
		// All stock curves decelerate: past the midpoint of the travel early.
		assert.Greater(t, p.Easing.At(0.5), 0.5, p.Name)
	}
}

func TestCubicBezier_TimeAtInvertsAt(t *testing.T) {
	c := CubicBezier{0.15, 0, 0.25, 1}
	x := c.TimeAt(0.9)
	assert.InDelta(t, 0.9, c.At(x), 1e-4)
	assert.Equal(t, 0.0, c.TimeAt(0))
	assert.Equal(t, 1.0, c.TimeAt(1))
}

func TestCubicBezier_CSS(t *testing.T) {
	assert.Equal(t, "cubic-bezier(0.1, 0.02, 0.2, 1)", CubicBezier{0.10, 0.02, 0.20, 1}.CSS())
}

func TestDefaultPatterns(t *testing.T) {
	patterns := DefaultPatterns()
	assert.Len(t, patterns, 9)

	names := make(map[string]bool)
	for _, p := range patterns {
		names[p.Name] = true
		assert.GreaterOrEqual(t, p.Duration, 3800*time.Millisecond)
		assert.LessOrEqual(t, p.Duration, 6500*time.Millisecond)
		assert.LessOrEqual(t, p.ExtraOffset, 80.0)
		assert.GreaterOrEqual(t, p.ExtraOffset, -55.0)

		decel := p.DecelerateAfter()
		assert.Greater(t, decel, time.Duration(0), p.Name)
		assert.Less(t, decel, p.Duration, p.Name)
	}
	assert.Len(t, names, 9)
}

func TestChoosePattern(t *testing.T) {
	patterns := DefaultPatterns()
	assert.Equal(t, "far-overshoot", ChoosePattern(patterns, fixedRNG{val: 6}).Name)
	assert.Equal(t, "exact", ChoosePattern(patterns, fixedRNG{val: 9}).Name)
}
