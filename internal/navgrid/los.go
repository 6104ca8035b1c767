package navgrid

import "gonum.org/v1/gonum/spatial/r3"

// lineIterator walks grid cells along a 2D Bresenham line, start included.
type lineIterator struct {
	x, z         int
	targetX      int
	targetZ      int
	deltaX       int
	deltaZ       int
	stepX, stepZ int
	err          int
	started      bool
}

func newLineIterator(sx, sz, ex, ez int) *lineIterator {
	it := &lineIterator{
		x: sx, z: sz,
		targetX: ex, targetZ: ez,
		deltaX: absInt(ex - sx),
		deltaZ: -absInt(ez - sz),
		stepX:  1,
		stepZ:  1,
	}
	if sx > ex {
		it.stepX = -1
	}
	if sz > ez {
		it.stepZ = -1
	}
	it.err = it.deltaX + it.deltaZ
	return it
}

// Next advances to the next cell. Returns false once the target was visited.
func (it *lineIterator) Next() bool {
	if !it.started {
		it.started = true
		return true
	}
	if it.x == it.targetX && it.z == it.targetZ {
		return false
	}
	e2 := 2 * it.err
	if e2 >= it.deltaZ {
		it.err += it.deltaZ
		it.x += it.stepX
	}
	if e2 <= it.deltaX {
		it.err += it.deltaX
		it.z += it.stepZ
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// HasLineOfSight reports whether the straight XZ segment from a to b crosses
// only open cells without cutting a blocked corner. Off-grid endpoints fail.
func HasLineOfSight(g *Grid, a, b r3.Vec) bool {
	if g == nil {
		return false
	}
	ax, az, ok := g.WorldToCell(a)
	if !ok {
		return false
	}
	bx, bz, ok := g.WorldToCell(b)
	if !ok {
		return false
	}

	it := newLineIterator(ax, az, bx, bz)
	px, pz := ax, az
	for it.Next() {
		if g.IsBlocked(it.x, it.z) {
			return false
		}
		if it.x != px && it.z != pz {
			if g.IsBlocked(it.x, pz) || g.IsBlocked(px, it.z) {
				return false
			}
		}
		px, pz = it.x, it.z
	}
	return true
}

// SmoothPath removes intermediate waypoints: if waypoint N+1 is visible from
// the last kept waypoint, waypoint N is dropped. Up to 3 passes.
func SmoothPath(g *Grid, path []r3.Vec) []r3.Vec {
	for range 3 {
		if len(path) <= 2 {
			return path
		}

		changed := false
		smoothed := make([]r3.Vec, 0, len(path))
		smoothed = append(smoothed, path[0])

		for i := 1; i < len(path)-1; i++ {
			prev := smoothed[len(smoothed)-1]
			if HasLineOfSight(g, prev, path[i+1]) {
				changed = true
				continue
			}
			smoothed = append(smoothed, path[i])
		}
		smoothed = append(smoothed, path[len(path)-1])
		path = smoothed

		if !changed {
			break
		}
	}
	return path
}
