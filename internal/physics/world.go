// Package physics provides the collision query provider used by the grid
// rasterizer: static obstacles projected onto the XZ plane of a chipmunk
// space, each with a vertical span and a layer bitmask.
package physics

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jakecoffman/cp"
	"gonum.org/v1/gonum/spatial/r3"
)

// ShapeKind is the footprint of an obstacle on the XZ plane.
type ShapeKind uint8

const (
	ShapeBox ShapeKind = iota
	ShapeCircle
)

// DefaultLayer is used for obstacles that do not specify a layer.
const DefaultLayer uint32 = 1

var (
	ErrDuplicateObstacle = errors.New("physics: duplicate obstacle id")
	ErrInvalidObstacle   = errors.New("physics: invalid obstacle")
)

// Obstacle is a static blocker. Box obstacles use Min/Max; circle obstacles
// use Center/Radius on XZ and Min.Y/Max.Y for their vertical span.
type Obstacle struct {
	ID     string
	Kind   ShapeKind
	Min    r3.Vec
	Max    r3.Vec
	Center r3.Vec
	Radius float64
	Layer  uint32
}

type span struct{ minY, maxY float64 }

// World is a set of static obstacles answering capsule overlap queries.
// Safe for concurrent use.
type World struct {
	mu    sync.Mutex
	space *cp.Space
	byID  map[string]*cp.Shape
	spans map[*cp.Shape]span
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		space: cp.NewSpace(),
		byID:  make(map[string]*cp.Shape),
		spans: make(map[*cp.Shape]span),
	}
}

// Len returns the number of obstacles.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byID)
}

// Add inserts o. IDs must be unique.
func (w *World) Add(o Obstacle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(o)
}

func (w *World) addLocked(o Obstacle) error {
	if _, ok := w.byID[o.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateObstacle, o.ID)
	}

	var shape *cp.Shape
	sp := span{minY: math.Min(o.Min.Y, o.Max.Y), maxY: math.Max(o.Min.Y, o.Max.Y)}
	switch o.Kind {
	case ShapeBox:
		bb := cp.BB{
			L: math.Min(o.Min.X, o.Max.X),
			B: math.Min(o.Min.Z, o.Max.Z),
			R: math.Max(o.Min.X, o.Max.X),
			T: math.Max(o.Min.Z, o.Max.Z),
		}
		if bb.R-bb.L <= 0 || bb.T-bb.B <= 0 {
			return fmt.Errorf("%w: box %q has empty footprint", ErrInvalidObstacle, o.ID)
		}
		shape = cp.NewBox2(w.space.StaticBody, bb, 0)
	case ShapeCircle:
		if o.Radius <= 0 {
			return fmt.Errorf("%w: circle %q has radius %v", ErrInvalidObstacle, o.ID, o.Radius)
		}
		shape = cp.NewCircle(w.space.StaticBody, o.Radius, cp.Vector{X: o.Center.X, Y: o.Center.Z})
	default:
		return fmt.Errorf("%w: %q has unknown shape %d", ErrInvalidObstacle, o.ID, o.Kind)
	}

	layer := o.Layer
	if layer == 0 {
		layer = DefaultLayer
	}
	shape.SetFilter(cp.ShapeFilter{Group: cp.NO_GROUP, Categories: uint(layer), Mask: cp.ALL_CATEGORIES})
	w.space.AddShape(shape)
	w.byID[o.ID] = shape
	w.spans[shape] = sp
	return nil
}

// Remove deletes the obstacle with the given id.
func (w *World) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	shape, ok := w.byID[id]
	if !ok {
		return false
	}
	w.space.RemoveShape(shape)
	delete(w.byID, id)
	delete(w.spans, shape)
	return true
}

// Reset replaces every obstacle. On error the world is left empty.
func (w *World) Reset(obstacles []Obstacle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.space = cp.NewSpace()
	w.byID = make(map[string]*cp.Shape, len(obstacles))
	w.spans = make(map[*cp.Shape]span, len(obstacles))
	for _, o := range obstacles {
		if err := w.addLocked(o); err != nil {
			w.space = cp.NewSpace()
			w.byID = make(map[string]*cp.Shape)
			w.spans = make(map[*cp.Shape]span)
			return fmt.Errorf("resetting physics world: %w", err)
		}
	}
	return nil
}

// OverlapsCapsule implements navgrid.Collider. The capsule is projected onto
// XZ as a swept circle; obstacles must also overlap its vertical span.
func (w *World) OverlapsCapsule(p1, p2 r3.Vec, radius float64, mask uint32) bool {
	radius = math.Max(radius, 0)
	lo := math.Min(p1.Y, p2.Y) - radius
	hi := math.Max(p1.Y, p2.Y) + radius

	filter := cp.ShapeFilter{Group: cp.NO_GROUP, Categories: cp.ALL_CATEGORIES, Mask: uint(mask)}
	a := cp.Vector{X: p1.X, Y: p1.Z}
	b := cp.Vector{X: p2.X, Y: p2.Z}

	w.mu.Lock()
	defer w.mu.Unlock()

	hit := false
	check := func(shape *cp.Shape) {
		if hit {
			return
		}
		sp, ok := w.spans[shape]
		if ok && sp.maxY >= lo && sp.minY <= hi {
			hit = true
		}
	}

	near := func(pt cp.Vector) {
		w.space.BBQuery(cp.NewBBForCircle(pt, radius), filter, func(shape *cp.Shape, _ interface{}) {
			if shape.PointQuery(pt).Distance <= radius {
				check(shape)
			}
		}, nil)
	}

	near(a)
	if hit {
		return true
	}

	if math.Hypot(b.X-a.X, b.Y-a.Y) > 1e-9 {
		near(b)
		if hit {
			return true
		}
		w.space.SegmentQuery(a, b, radius, filter, func(shape *cp.Shape, _, _ cp.Vector, _ float64, _ interface{}) {
			check(shape)
		}, nil)
	}
	return hit
}
