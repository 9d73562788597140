package mobility

import (
	"errors"
	"fmt"

	"github.com/azaurus1/fanet/internal/geometry"
)

var ErrNoPath = errors.New("no path for drone")

// Path is a cyclic waypoint sequence: after the last waypoint a drone heads
// back to the first one.
type Path []geometry.Point

// Start is the position a drone is spawned at.
func (p Path) Start() geometry.Point {
	return p[0]
}

// Next returns the index of the waypoint following i, wrapping around.
func (p Path) Next(i int) int {
	if i >= len(p)-1 {
		return 0
	}
	return i + 1
}

// Provider hands out one path per drone index.
type Provider interface {
	Path(i int) (Path, error)
}

// Static serves paths declared up front, typically in the config file.
type Static struct {
	paths []Path
}

func NewStatic(paths [][]geometry.Point) *Static {
	s := &Static{paths: make([]Path, 0, len(paths))}
	for _, p := range paths {
		s.paths = append(s.paths, append(Path(nil), p...))
	}
	return s
}

func (s *Static) Path(i int) (Path, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, fmt.Errorf("drone %d: %w", i, ErrNoPath)
	}
	if len(s.paths[i]) == 0 {
		return nil, fmt.Errorf("drone %d has an empty path: %w", i, ErrNoPath)
	}
	return append(Path(nil), s.paths[i]...), nil
}
