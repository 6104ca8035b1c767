package navgrid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Grid dimension limits. Degenerate inputs are clamped up to these.
const (
	MinCellSize   = 0.05
	MinHalfExtent = 0.01
)

// Volume is the world-space box covered by a grid (center + half extents).
type Volume struct {
	Center      r3.Vec
	HalfExtents r3.Vec
}

// Clamped returns the volume with every half extent raised to MinHalfExtent.
func (v Volume) Clamped() Volume {
	v.HalfExtents.X = math.Max(math.Abs(v.HalfExtents.X), MinHalfExtent)
	v.HalfExtents.Y = math.Max(math.Abs(v.HalfExtents.Y), MinHalfExtent)
	v.HalfExtents.Z = math.Max(math.Abs(v.HalfExtents.Z), MinHalfExtent)
	return v
}

// Bounds returns the axis-aligned box of the clamped volume.
func (v Volume) Bounds() r3.Box {
	c := v.Clamped()
	return r3.Box{
		Min: r3.Sub(c.Center, c.HalfExtents),
		Max: r3.Add(c.Center, c.HalfExtents),
	}
}

// ClampCellSize raises non-positive or tiny cell sizes to MinCellSize.
func ClampCellSize(cellSize float64) float64 {
	if math.IsNaN(cellSize) || cellSize < MinCellSize {
		return MinCellSize
	}
	return cellSize
}

// Grid is a flat 2D occupancy grid over the XZ plane of a world volume.
// Cells are stored row-major: index = z*width + x.
//
// A Grid handed out by a Coordinator is a published snapshot and must not be
// mutated by readers.
type Grid struct {
	bounds   r3.Box
	cellSize float64
	width    int
	height   int
	blocked  []bool
	heights  []float64 // nil unless built in fit-to-terrain mode
}

// NewGrid allocates an all-free grid covering volume. When withHeights is set
// the grid carries a per-cell height layer initialised to the volume center Y.
func NewGrid(volume Volume, cellSize float64, withHeights bool) *Grid {
	bounds := volume.Bounds()
	cellSize = ClampCellSize(cellSize)

	w := int(math.Ceil((bounds.Max.X - bounds.Min.X) / cellSize))
	h := int(math.Ceil((bounds.Max.Z - bounds.Min.Z) / cellSize))
	w = max(w, 1)
	h = max(h, 1)

	g := &Grid{
		bounds:   bounds,
		cellSize: cellSize,
		width:    w,
		height:   h,
		blocked:  make([]bool, w*h),
	}
	if withHeights {
		g.heights = make([]float64, w*h)
		cy := (bounds.Min.Y + bounds.Max.Y) / 2
		for i := range g.heights {
			g.heights[i] = cy
		}
	}
	return g
}

// Width returns the number of cells along X.
func (g *Grid) Width() int { return g.width }

// Height returns the number of cells along Z.
func (g *Grid) Height() int { return g.height }

// CellSize returns the world size of a cell edge.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Bounds returns the world box covered by the grid.
func (g *Grid) Bounds() r3.Box { return g.bounds }

// CenterY returns the vertical center of the grid volume.
func (g *Grid) CenterY() float64 { return (g.bounds.Min.Y + g.bounds.Max.Y) / 2 }

// Len returns the total number of cells.
func (g *Grid) Len() int { return g.width * g.height }

// Index returns the flat index of (x, z). Bounds are not checked.
func (g *Grid) Index(x, z int) int {
	return z*g.width + x
}

// Cell returns the (x, z) coordinates of a flat index.
func (g *Grid) Cell(idx int) (x, z int) {
	return idx % g.width, idx / g.width
}

// InBounds reports whether (x, z) addresses a cell of the grid.
func (g *Grid) InBounds(x, z int) bool {
	return x >= 0 && x < g.width && z >= 0 && z < g.height
}

// IsBlocked returns the occupancy of (x, z). Out-of-bounds cells are blocked.
func (g *Grid) IsBlocked(x, z int) bool {
	if !g.InBounds(x, z) {
		return true
	}
	return g.blocked[g.Index(x, z)]
}

// SetBlocked sets the occupancy of (x, z). No-op when out of bounds.
func (g *Grid) SetBlocked(x, z int, value bool) {
	if !g.InBounds(x, z) {
		return
	}
	g.blocked[g.Index(x, z)] = value
}

// BlockedCount returns the number of blocked cells.
func (g *Grid) BlockedCount() int {
	n := 0
	for _, b := range g.blocked {
		if b {
			n++
		}
	}
	return n
}

// BlockedMask returns a copy of the occupancy layer.
func (g *Grid) BlockedMask() []bool {
	out := make([]bool, len(g.blocked))
	copy(out, g.blocked)
	return out
}

// WorldToCell maps a world position onto the XZ cell containing it.
// ok is false when the position lies outside the grid.
func (g *Grid) WorldToCell(p r3.Vec) (x, z int, ok bool) {
	fx := math.Floor((p.X - g.bounds.Min.X) / g.cellSize)
	fz := math.Floor((p.Z - g.bounds.Min.Z) / g.cellSize)
	// Rejects NaN as well.
	if !(fx >= 0 && fx < float64(g.width) && fz >= 0 && fz < float64(g.height)) {
		return 0, 0, false
	}
	return int(fx), int(fz), true
}

// CellCenterWorld returns the world-space center of (x, z). Y is the stored
// cell height in fit-to-terrain mode, defaultY otherwise.
func (g *Grid) CellCenterWorld(x, z int, defaultY float64) r3.Vec {
	return r3.Vec{
		X: g.bounds.Min.X + (float64(x)+0.5)*g.cellSize,
		Y: g.CellHeight(x, z, defaultY),
		Z: g.bounds.Min.Z + (float64(z)+0.5)*g.cellSize,
	}
}

// HasHeights reports whether the grid was built in fit-to-terrain mode.
func (g *Grid) HasHeights() bool { return g.heights != nil }

// SetCellHeight stores the sampled height of (x, z). No-op without a height
// layer or out of bounds.
func (g *Grid) SetCellHeight(x, z int, y float64) {
	if g.heights == nil || !g.InBounds(x, z) {
		return
	}
	g.heights[g.Index(x, z)] = y
}

// CellHeight returns the sampled height of (x, z), or defaultY when the grid
// has no height layer or the cell is out of bounds.
func (g *Grid) CellHeight(x, z int, defaultY float64) float64 {
	if g.heights == nil || !g.InBounds(x, z) {
		return defaultY
	}
	return g.heights[g.Index(x, z)]
}
