package navgrid

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Collider answers physics overlap queries for the rasterizer.
type Collider interface {
	// OverlapsCapsule reports whether a capsule between p1 and p2 with the
	// given radius touches any obstacle whose layer is in mask.
	OverlapsCapsule(p1, p2 r3.Vec, radius float64, mask uint32) bool
}

// RebuildStats summarises one rasterization pass.
type RebuildStats struct {
	Cells          int
	PhysicsBlocked int
	VolumeBlocked  int
	SlopeBlocked   int
	Duration       time.Duration
}

// Blocked returns the total number of blocked cells.
func (s RebuildStats) Blocked() int {
	return s.PhysicsBlocked + s.VolumeBlocked + s.SlopeBlocked
}

// Rasterizer builds occupancy grids from world state. It is the single place
// that defines what a blocked cell is. A zero Rasterizer produces a flat,
// fully open grid with minimum cell size.
type Rasterizer struct {
	Volume       Volume
	CellSize     float64
	AgentRadius  float64
	AgentHeight  float64
	ObstacleMask uint32

	FitToTerrain    bool
	MaxSlopeDegrees float64

	Collider Collider
	Terrain  []HeightProvider
	Logger   *slog.Logger
}

func (r Rasterizer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Build rasterizes a fresh grid. Every call is a full rebuild.
//
// Per cell, first match wins: physics overlap, cell center (at its sample
// height) inside an exclusion volume,
// slope to any of the 8 neighbours (fit-to-terrain only).
func (r Rasterizer) Build(volumes []ExclusionVolume) (*Grid, RebuildStats) {
	start := time.Now()
	log := r.logger()

	g := NewGrid(r.Volume, r.CellSize, r.FitToTerrain)
	defaultY := g.CenterY()

	if r.Collider == nil {
		log.Warn("navgrid: no collision provider, physics blocking disabled")
	}

	// Pass 1: heights must be complete before slope checks read neighbours.
	if r.FitToTerrain {
		if len(r.Terrain) == 0 {
			log.Warn("navgrid: fit-to-terrain enabled without terrain providers, grid is flat",
				"default_y", defaultY)
		}
		for z := range g.height {
			for x := range g.width {
				c := g.CellCenterWorld(x, z, defaultY)
				g.heights[g.Index(x, z)] = sampleTerrain(r.Terrain, c.X, c.Z, defaultY)
			}
		}
	}

	bounds := make([]r3.Box, 0, len(volumes))
	for _, v := range volumes {
		if v != nil {
			bounds = append(bounds, v.WorldBounds())
		}
	}

	maxDelta := -1.0
	if r.FitToTerrain && r.MaxSlopeDegrees > 0 && r.MaxSlopeDegrees < 90 {
		maxDelta = g.cellSize * math.Tan(r.MaxSlopeDegrees*math.Pi/180)
	}

	radius := math.Max(r.AgentRadius, 0)
	half := math.Max(r.AgentHeight/2-radius, 0)

	stats := RebuildStats{Cells: g.Len()}

	// Pass 2: occupancy.
	for z := range g.height {
		for x := range g.width {
			idx := g.Index(x, z)
			c := g.CellCenterWorld(x, z, defaultY)

			if r.Collider != nil {
				p1 := r3.Vec{X: c.X, Y: c.Y - half, Z: c.Z}
				p2 := r3.Vec{X: c.X, Y: c.Y + half, Z: c.Z}
				if r.Collider.OverlapsCapsule(p1, p2, radius, r.ObstacleMask) {
					g.blocked[idx] = true
					stats.PhysicsBlocked++
					continue
				}
			}

			if insideAny(bounds, c) {
				g.blocked[idx] = true
				stats.VolumeBlocked++
				continue
			}

			if maxDelta >= 0 && g.tooSteep(x, z, maxDelta) {
				g.blocked[idx] = true
				stats.SlopeBlocked++
			}
		}
	}

	stats.Duration = time.Since(start)
	return g, stats
}

func insideAny(bounds []r3.Box, p r3.Vec) bool {
	for _, b := range bounds {
		if containsPoint(b, p) {
			return true
		}
	}
	return false
}

// tooSteep compares the cell height against its in-bounds 8-neighbourhood.
func (g *Grid) tooSteep(x, z int, maxDelta float64) bool {
	h := g.heights[g.Index(x, z)]
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dz == 0 {
				continue
			}
			nx, nz := x+dx, z+dz
			if !g.InBounds(nx, nz) {
				continue
			}
			if math.Abs(g.heights[g.Index(nx, nz)]-h) > maxDelta {
				return true
			}
		}
	}
	return false
}
