package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", Point{3, 4}, Point{3, 4}, 0},
		{"pythagorean", Point{0, 0}, Point{3, 4}, 5},
		{"negative coords", Point{-1, -1}, Point{2, 3}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), 1e-9)
		})
	}
}

func TestInterpolateEndpoints(t *testing.T) {
	p0 := Point{10, 20}
	p1 := Point{-30, 50}

	assert.Equal(t, p0, Interpolate(p0, p1, 0))
	assert.Equal(t, p1, Interpolate(p0, p1, 1))
	assert.Equal(t, p1, Interpolate(p0, p1, 2.5))

	mid := Interpolate(p0, p1, 0.5)
	assert.InDelta(t, -10, mid.X, 1e-9)
	assert.InDelta(t, 35, mid.Y, 1e-9)
}

func TestInterpolateNegativeRatioPanics(t *testing.T) {
	assert.Panics(t, func() { Interpolate(Point{}, Point{1, 1}, -0.1) })
}

func TestAdvance(t *testing.T) {
	p, arrived := Advance(Point{0, 0}, Point{10, 0}, 4)
	assert.False(t, arrived)
	assert.InDelta(t, 4, p.X, 1e-9)

	p, arrived = Advance(Point{0, 0}, Point{10, 0}, 12)
	assert.True(t, arrived)
	assert.Equal(t, Point{10, 0}, p)

	p, arrived = Advance(Point{5, 5}, Point{5, 5}, 0)
	assert.True(t, arrived)
	assert.Equal(t, Point{5, 5}, p)

	p, arrived = Advance(Point{0, 0}, Point{10, 0}, 0)
	assert.False(t, arrived)
	assert.Equal(t, Point{0, 0}, p)
}

func TestPredictCapsAtTarget(t *testing.T) {
	pos := Point{0, 0}
	target := Point{0, 100}

	assert.Equal(t, pos, Predict(pos, target, 10, 0))
	assert.InDelta(t, 50, Predict(pos, target, 10, 5).Y, 1e-9)
	assert.Equal(t, target, Predict(pos, target, 10, 60))
}
