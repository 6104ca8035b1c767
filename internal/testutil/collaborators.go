package testutil

import (
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StubCollider blocks any capsule whose XZ axis point falls inside one of
// Boxes (vertical extent ignored). It counts queries.
type StubCollider struct {
	mu    sync.Mutex
	Boxes []r3.Box
	calls atomic.Int64
}

// NewStubCollider returns a collider blocking the given XZ rectangles.
func NewStubCollider(boxes ...r3.Box) *StubCollider {
	return &StubCollider{Boxes: boxes}
}

// BlockCells returns a collider blocking the unit cells (x, z) of a grid whose
// minimum corner is at the origin.
func BlockCells(cellSize float64, cells ...[2]int) *StubCollider {
	boxes := make([]r3.Box, 0, len(cells))
	for _, c := range cells {
		x0 := float64(c[0]) * cellSize
		z0 := float64(c[1]) * cellSize
		boxes = append(boxes, r3.Box{
			Min: r3.Vec{X: x0, Z: z0},
			Max: r3.Vec{X: x0 + cellSize, Z: z0 + cellSize},
		})
	}
	return NewStubCollider(boxes...)
}

// SetBoxes replaces the blocked rectangles.
func (c *StubCollider) SetBoxes(boxes ...r3.Box) {
	c.mu.Lock()
	c.Boxes = boxes
	c.mu.Unlock()
}

// Calls returns the number of OverlapsCapsule calls so far.
func (c *StubCollider) Calls() int64 { return c.calls.Load() }

// OverlapsCapsule implements navgrid.Collider.
func (c *StubCollider) OverlapsCapsule(p1, _ r3.Vec, _ float64, _ uint32) bool {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.Boxes {
		if p1.X >= b.Min.X && p1.X < b.Max.X && p1.Z >= b.Min.Z && p1.Z < b.Max.Z {
			return true
		}
	}
	return false
}

// FuncTerrain adapts two functions into a terrain provider.
type FuncTerrain struct {
	Contains func(x, z float64) bool
	Height   func(x, z float64) float64
}

func (f FuncTerrain) ContainsXZ(x, z float64) bool      { return f.Contains(x, z) }
func (f FuncTerrain) SampleHeight(x, z float64) float64 { return f.Height(x, z) }

// ConstTerrain covers everything with a constant height.
func ConstTerrain(y float64) FuncTerrain {
	return FuncTerrain{
		Contains: func(float64, float64) bool { return true },
		Height:   func(float64, float64) float64 { return y },
	}
}

// Clock is a manually advanced clock for debounce tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
