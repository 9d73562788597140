package geometry

import (
	"fmt"
	"math"
)

// Point is a position on the simulated plane, in metres.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Interpolate returns the point at ratio t of the segment from p0 to p1.
// A negative ratio means the caller computed a degenerate movement and panics.
func Interpolate(p0, p1 Point, t float64) Point {
	switch {
	case t < 0 || math.IsNaN(t):
		panic(fmt.Sprintf("geometry: invalid interpolation ratio %f", t))
	case t == 0:
		return p0
	case t >= 1:
		return p1
	}
	return Point{
		X: (1-t)*p0.X + t*p1.X,
		Y: (1-t)*p0.Y + t*p1.Y,
	}
}

// Advance moves from p0 towards p1 by at most travel metres. The second
// return value reports whether p1 was reached.
func Advance(p0, p1 Point, travel float64) (Point, bool) {
	total := Distance(p0, p1)
	if total == 0 {
		return p1, true
	}
	if travel == 0 {
		return p0, false
	}
	t := travel / total
	if t >= 1 {
		return p1, true
	}
	return Interpolate(p0, p1, t), false
}

// Predict extrapolates where a node last seen at pos, flying towards target at
// speed, is after elapsed seconds. The result never overshoots target.
func Predict(pos, target Point, speed, elapsed float64) Point {
	travel := speed * elapsed
	if travel <= 0 {
		return pos
	}
	p, _ := Advance(pos, target, travel)
	return p
}
