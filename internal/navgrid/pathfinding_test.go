package navgrid

import (
	"container/heap"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// center returns the world center of unit cell (x, z).
func center(x, z int) r3.Vec {
	return r3.Vec{X: float64(x) + 0.5, Y: 1, Z: float64(z) + 0.5}
}

func openGrid(w, h int) *Grid {
	return NewGrid(unitVolume(float64(w), float64(h)), 1, false)
}

func cellsOf(t *testing.T, g *Grid, path []r3.Vec) [][2]int {
	t.Helper()
	out := make([][2]int, 0, len(path))
	for _, p := range path {
		x, z, ok := g.WorldToCell(p)
		require.True(t, ok)
		out = append(out, [2]int{x, z})
	}
	return out
}

// assertContiguous checks every step moves to an adjacent open cell.
func assertContiguous(t *testing.T, g *Grid, cells [][2]int, diagonals bool) {
	t.Helper()
	for i, c := range cells {
		assert.False(t, g.IsBlocked(c[0], c[1]), "step %d on blocked cell %v", i, c)
		if i == 0 {
			continue
		}
		dx := absInt(c[0] - cells[i-1][0])
		dz := absInt(c[1] - cells[i-1][1])
		assert.LessOrEqual(t, dx, 1)
		assert.LessOrEqual(t, dz, 1)
		assert.NotEqual(t, 0, dx+dz, "step %d does not move", i)
		if !diagonals {
			assert.Equal(t, 1, dx+dz, "step %d is diagonal", i)
		}
	}
}

func TestFindPathOpenGridDiagonal(t *testing.T) {
	g := openGrid(10, 10)

	res := Search(g, center(0, 0), center(9, 9), 1, Settings{AllowDiagonals: true})
	require.Equal(t, StatusFound, res.Status)
	require.Len(t, res.Path, 10, "9 steps")

	assert.InDelta(t, 9*math.Sqrt2, res.Cost, 1e-9)
	assert.InDelta(t, 12.73, PathCost(res.Path, 1), 0.01)
	assert.Equal(t, center(0, 0), res.Path[0])
	assert.Equal(t, center(9, 9), res.Path[9])
}

func TestFindPathOptimalOnOpenGrid(t *testing.T) {
	g := openGrid(12, 9)
	pairs := [][4]int{
		{0, 0, 11, 8},
		{3, 7, 10, 1},
		{5, 5, 5, 0},
		{11, 0, 0, 3},
	}
	for _, p := range pairs {
		path := FindPath(g, center(p[0], p[1]), center(p[2], p[3]), 1, Settings{AllowDiagonals: true})
		require.NotEmpty(t, path)

		dx := float64(absInt(p[2] - p[0]))
		dz := float64(absInt(p[3] - p[1]))
		want := math.Sqrt2*math.Min(dx, dz) + math.Abs(dx-dz)
		assert.InDelta(t, want, PathCost(path, 1), 1e-9, "pair %v", p)
	}
}

func TestFindPathFourConnectedManhattan(t *testing.T) {
	g := openGrid(10, 10)
	path := FindPath(g, center(0, 0), center(9, 9), 1, Settings{})
	require.Len(t, path, 19)
	assertContiguous(t, g, cellsOf(t, g, path), false)
	assert.InDelta(t, 18, PathCost(path, 1), 1e-9)
}

func TestFindPathWallSegment(t *testing.T) {
	g := openGrid(10, 10)
	g.SetBlocked(5, 5, true)
	g.SetBlocked(5, 6, true)

	// Crossing the wall on its own row forces a detour.
	path := FindPath(g, center(0, 5), center(9, 5), 1, Settings{})
	require.NotEmpty(t, path)
	cells := cellsOf(t, g, path)
	assertContiguous(t, g, cells, false)
	assert.Greater(t, PathCost(path, 1), 9.0)
	assert.InDelta(t, 11, PathCost(path, 1), 1e-9)

	// Corner to corner still has a Manhattan route around the segment.
	path = FindPath(g, center(0, 0), center(9, 9), 1, Settings{})
	require.NotEmpty(t, path)
	assertContiguous(t, g, cellsOf(t, g, path), false)
	assert.InDelta(t, 18, PathCost(path, 1), 1e-9)
}

func TestFindPathNoCornerCutting(t *testing.T) {
	// 3x3 grid: (1,1) open, the cell above it (1,2) and the cell right of
	// the start diagonal (2,1) blocked.
	g := openGrid(3, 3)
	g.SetBlocked(1, 2, true)
	g.SetBlocked(2, 1, true)

	path := FindPath(g, center(1, 1), center(2, 2), 1, Settings{AllowDiagonals: true})
	assert.Empty(t, path, "the only diagonal squeezes between two blocked cells")

	g = openGrid(3, 3)
	g.SetBlocked(1, 0, true)
	path = FindPath(g, center(0, 0), center(1, 1), 1, Settings{AllowDiagonals: true})
	require.NotEmpty(t, path)
	cells := cellsOf(t, g, path)
	assert.Equal(t, [][2]int{{0, 0}, {0, 1}, {1, 1}}, cells, "routes around the corner")
}

func TestFindPathRejects(t *testing.T) {
	g := openGrid(5, 5)
	g.SetBlocked(4, 4, true)
	g.SetBlocked(0, 0, true)

	tests := []struct {
		name        string
		grid        *Grid
		start, goal r3.Vec
	}{
		{"nil grid", nil, center(1, 1), center(2, 2)},
		{"start off grid", g, r3.Vec{X: -1, Z: 1}, center(2, 2)},
		{"goal off grid", g, center(1, 1), r3.Vec{X: 1, Z: 99}},
		{"blocked goal", g, center(1, 1), center(4, 4)},
		{"blocked start", g, center(0, 0), center(2, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range []Settings{{}, {AllowDiagonals: true, ReturnBestEffort: true}, {MaxExpandedNodes: 1}} {
				res := Search(tt.grid, tt.start, tt.goal, 0, s)
				assert.Equal(t, StatusRejected, res.Status)
				assert.Empty(t, res.Path)
			}
		})
	}
}

func TestFindPathSameCell(t *testing.T) {
	g := openGrid(4, 4)
	res := Search(g, r3.Vec{X: 2.1, Z: 2.2}, r3.Vec{X: 2.9, Z: 2.8}, 7, Settings{})
	require.Equal(t, StatusFound, res.Status)
	require.Len(t, res.Path, 1)
	assert.Equal(t, r3.Vec{X: 2.5, Y: 7, Z: 2.5}, res.Path[0])
}

func TestFindPathEnclosedGoal(t *testing.T) {
	g := openGrid(7, 7)
	for _, c := range [][2]int{{4, 4}, {5, 4}, {6, 4}, {4, 5}, {4, 6}} {
		g.SetBlocked(c[0], c[1], true)
	}

	res := Search(g, center(0, 0), center(6, 6), 1, Settings{AllowDiagonals: true})
	assert.Equal(t, StatusNoPath, res.Status)
	assert.Empty(t, res.Path)

	res = Search(g, center(0, 0), center(6, 6), 1, Settings{AllowDiagonals: true, ReturnBestEffort: true})
	require.Equal(t, StatusPartial, res.Status)
	require.NotEmpty(t, res.Path)
	last := cellsOf(t, g, res.Path)[len(res.Path)-1]
	// Closest reachable cells to (6,6) are (3,6) and (6,3).
	assert.InDelta(t, 3, math.Hypot(float64(6-last[0]), float64(6-last[1])), 1e-9)
}

func TestFindPathExpansionCapFallsBack(t *testing.T) {
	g := openGrid(30, 30)
	start, goal := [2]int{0, 0}, [2]int{29, 29}

	for _, bestEffort := range []bool{true, false} {
		res := Search(g, center(start[0], start[1]), center(goal[0], goal[1]), 1, Settings{
			AllowDiagonals:   true,
			MaxExpandedNodes: 5,
			ReturnBestEffort: bestEffort,
		})
		require.Equal(t, StatusPartial, res.Status)
		assert.Equal(t, 5, res.Expanded)
		require.NotEmpty(t, res.Path)

		last := cellsOf(t, g, res.Path)[len(res.Path)-1]
		hStart := math.Hypot(float64(goal[0]-start[0]), float64(goal[1]-start[1]))
		hLast := math.Hypot(float64(goal[0]-last[0]), float64(goal[1]-last[1]))
		assert.Less(t, hLast, hStart)
	}
}

func TestFindPathUsesCellHeights(t *testing.T) {
	g := NewGrid(unitVolume(3, 1), 1, true)
	g.SetCellHeight(0, 0, 1)
	g.SetCellHeight(1, 0, 2)
	g.SetCellHeight(2, 0, 3)

	path := FindPath(g, center(0, 0), center(2, 0), 99, Settings{})
	require.Len(t, path, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{path[0].Y, path[1].Y, path[2].Y})
}

func TestFindPathDeterministic(t *testing.T) {
	g := openGrid(15, 15)
	g.SetBlocked(7, 7, true)
	first := FindPath(g, center(0, 7), center(14, 7), 1, Settings{AllowDiagonals: true})
	for range 5 {
		assert.Equal(t, first, FindPath(g, center(0, 7), center(14, 7), 1, Settings{AllowDiagonals: true}))
	}
}

func TestFindPathSmoothing(t *testing.T) {
	g := openGrid(10, 10)
	raw := FindPath(g, center(0, 0), center(9, 3), 1, Settings{AllowDiagonals: true})
	smooth := FindPath(g, center(0, 0), center(9, 3), 1, Settings{AllowDiagonals: true, SmoothPaths: true})

	require.Greater(t, len(raw), 2)
	assert.Equal(t, []r3.Vec{center(0, 0), center(9, 3)}, smooth)
}

func TestNodeHeapOrder(t *testing.T) {
	h := &nodeHeap{}
	heap.Push(h, &pathNode{idx: 9, f: 3})
	heap.Push(h, &pathNode{idx: 4, f: 1})
	heap.Push(h, &pathNode{idx: 2, f: 3})
	heap.Push(h, &pathNode{idx: 7, f: 1})

	var order []int
	for h.Len() > 0 {
		n := heap.Pop(h).(*pathNode)
		assert.Equal(t, -1, n.heapIndex)
		order = append(order, n.idx)
	}
	assert.Equal(t, []int{4, 7, 2, 9}, order, "ties broken by cell index")
}

func TestNodeHeapDecreaseKey(t *testing.T) {
	h := &nodeHeap{}
	a := &pathNode{idx: 1, f: 5}
	b := &pathNode{idx: 2, f: 3}
	heap.Push(h, a)
	heap.Push(h, b)

	a.f = 1
	heap.Fix(h, a.heapIndex)
	assert.Same(t, a, heap.Pop(h).(*pathNode))
}
