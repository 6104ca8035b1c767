package navgrid

import (
	"fmt"
	"math"
	"slices"
)

// HeightProvider is a terrain source that can answer ground height queries
// inside its own XZ footprint.
type HeightProvider interface {
	ContainsXZ(x, z float64) bool
	SampleHeight(x, z float64) float64
}

// sampleTerrain asks providers in order and returns the first match.
func sampleTerrain(providers []HeightProvider, x, z, defaultY float64) float64 {
	for _, p := range providers {
		if p == nil || !p.ContainsXZ(x, z) {
			continue
		}
		return p.SampleHeight(x, z)
	}
	return defaultY
}

// Heightmap is a regular lattice of height samples over an XZ rectangle.
// Heights are stored row-major: index = row*Cols + col, with row along Z.
type Heightmap struct {
	OriginX float64
	OriginZ float64
	Spacing float64
	Cols    int
	Rows    int
	Heights []float64
}

// NewHeightmap validates the lattice layout and copies heights.
func NewHeightmap(originX, originZ, spacing float64, cols, rows int, heights []float64) (*Heightmap, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("heightmap spacing must be positive, got %v", spacing)
	}
	if cols < 2 || rows < 2 {
		return nil, fmt.Errorf("heightmap needs at least 2x2 samples, got %dx%d", cols, rows)
	}
	if len(heights) != cols*rows {
		return nil, fmt.Errorf("heightmap has %d samples, want %d", len(heights), cols*rows)
	}
	return &Heightmap{
		OriginX: originX,
		OriginZ: originZ,
		Spacing: spacing,
		Cols:    cols,
		Rows:    rows,
		Heights: slices.Clone(heights),
	}, nil
}

// valid reports whether the layout can be sampled. Literals built without
// NewHeightmap may not be.
func (h *Heightmap) valid() bool {
	return h.Spacing > 0 && h.Cols >= 2 && h.Rows >= 2 && len(h.Heights) >= h.Cols*h.Rows
}

// ContainsXZ implements HeightProvider. A malformed heightmap contains nothing.
func (h *Heightmap) ContainsXZ(x, z float64) bool {
	if !h.valid() {
		return false
	}
	maxX := h.OriginX + float64(h.Cols-1)*h.Spacing
	maxZ := h.OriginZ + float64(h.Rows-1)*h.Spacing
	return x >= h.OriginX && x <= maxX && z >= h.OriginZ && z <= maxZ
}

// SampleHeight bilinearly interpolates the four surrounding samples. A
// malformed heightmap samples as 0.
func (h *Heightmap) SampleHeight(x, z float64) float64 {
	if !h.valid() {
		return 0
	}
	fx := (x - h.OriginX) / h.Spacing
	fz := (z - h.OriginZ) / h.Spacing
	fx = math.Min(math.Max(fx, 0), float64(h.Cols-1))
	fz = math.Min(math.Max(fz, 0), float64(h.Rows-1))

	c0 := min(int(fx), h.Cols-2)
	r0 := min(int(fz), h.Rows-2)
	tx := fx - float64(c0)
	tz := fz - float64(r0)

	h00 := h.Heights[r0*h.Cols+c0]
	h10 := h.Heights[r0*h.Cols+c0+1]
	h01 := h.Heights[(r0+1)*h.Cols+c0]
	h11 := h.Heights[(r0+1)*h.Cols+c0+1]

	a := h00 + (h10-h00)*tx
	b := h01 + (h11-h01)*tx
	return a + (b-a)*tz
}

// PlaneTerrain is an inclined plane over an XZ rectangle:
// y = Base + SlopeX*(x-MinX) + SlopeZ*(z-MinZ).
type PlaneTerrain struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
	Base       float64
	SlopeX     float64
	SlopeZ     float64
}

// ContainsXZ implements HeightProvider.
func (p PlaneTerrain) ContainsXZ(x, z float64) bool {
	return x >= p.MinX && x <= p.MaxX && z >= p.MinZ && z <= p.MaxZ
}

// SampleHeight implements HeightProvider.
func (p PlaneTerrain) SampleHeight(x, z float64) float64 {
	return p.Base + p.SlopeX*(x-p.MinX) + p.SlopeZ*(z-p.MinZ)
}
