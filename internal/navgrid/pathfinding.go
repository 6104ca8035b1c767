package navgrid

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// A* step costs in cell units.
const (
	CostStraight = 1.0
	CostDiagonal = math.Sqrt2
)

// Settings tunes a path search.
type Settings struct {
	AllowDiagonals bool
	// MaxExpandedNodes caps the number of nodes popped from the open set.
	// 0 means unlimited.
	MaxExpandedNodes int
	// ReturnBestEffort returns the partial route to the expanded cell closest
	// to the goal when the goal is unreachable. A capped search always does.
	ReturnBestEffort bool
	// SmoothPaths drops waypoints that their neighbours can see directly.
	SmoothPaths bool
}

// SearchStatus is the outcome of a search.
type SearchStatus uint8

const (
	StatusRejected SearchStatus = iota // no grid, start/goal off-grid or blocked
	StatusFound
	StatusPartial
	StatusNoPath
)

// String implements fmt.Stringer.
func (s SearchStatus) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusFound:
		return "found"
	case StatusPartial:
		return "partial"
	case StatusNoPath:
		return "no_path"
	default:
		return "unknown"
	}
}

// SearchResult carries the waypoints of a search plus diagnostics.
type SearchResult struct {
	Path     []r3.Vec
	Status   SearchStatus
	Expanded int
	// Cost is the route cost in cell units before smoothing.
	Cost float64
}

// FindPath runs A* on g from start to goal and returns the cell-center
// waypoints of the route, start first. It returns nil when there is no route.
// sampleY is used for waypoint height unless the grid carries terrain heights.
func FindPath(g *Grid, start, goal r3.Vec, sampleY float64, s Settings) []r3.Vec {
	return Search(g, start, goal, sampleY, s).Path
}

// Search is FindPath with diagnostics.
func Search(g *Grid, start, goal r3.Vec, sampleY float64, s Settings) SearchResult {
	if g == nil {
		return SearchResult{Status: StatusRejected}
	}
	sx, sz, ok := g.WorldToCell(start)
	if !ok {
		return SearchResult{Status: StatusRejected}
	}
	gx, gz, ok := g.WorldToCell(goal)
	if !ok {
		return SearchResult{Status: StatusRejected}
	}
	if g.IsBlocked(sx, sz) || g.IsBlocked(gx, gz) {
		return SearchResult{Status: StatusRejected}
	}

	a := astar{
		grid:    g,
		goalX:   gx,
		goalZ:   gz,
		goalIdx: g.Index(gx, gz),
		nodes:   make(map[int]*pathNode, 256),
		diag:    s.AllowDiagonals,
	}
	end, best, aborted := a.run(g.Index(sx, sz), s.MaxExpandedNodes)

	res := SearchResult{Expanded: a.expanded}
	switch {
	case end != nil:
		res.Status = StatusFound
	case (aborted || s.ReturnBestEffort) && best != nil && best.parent != nil:
		end = best
		res.Status = StatusPartial
	default:
		res.Status = StatusNoPath
		return res
	}

	res.Cost = end.g
	res.Path = a.reconstruct(end, sampleY)
	if s.SmoothPaths {
		res.Path = SmoothPath(g, res.Path)
	}
	return res
}

// pathNode is the per-cell A* record. heapIndex is -1 when not in the open set.
type pathNode struct {
	idx       int
	x, z      int
	parent    *pathNode
	g         float64 // cost from start
	h         float64 // heuristic to goal
	f         float64 // g + h
	heapIndex int
	closed    bool
}

type astar struct {
	grid     *Grid
	goalX    int
	goalZ    int
	goalIdx  int
	nodes    map[int]*pathNode
	open     nodeHeap
	diag     bool
	expanded int
}

// run returns the goal node when reached, otherwise nil plus the expanded
// node with the smallest heuristic. aborted reports an expansion-cap stop.
func (a *astar) run(startIdx, maxExpanded int) (goal, best *pathNode, aborted bool) {
	sx, sz := a.grid.Cell(startIdx)
	start := &pathNode{idx: startIdx, x: sx, z: sz, h: a.heuristic(sx, sz)}
	start.f = start.h
	a.nodes[startIdx] = start

	heap.Init(&a.open)
	heap.Push(&a.open, start)

	for a.open.Len() > 0 {
		if maxExpanded > 0 && a.expanded >= maxExpanded {
			return nil, best, true
		}

		cur := heap.Pop(&a.open).(*pathNode)
		cur.closed = true
		a.expanded++

		if best == nil || cur.h < best.h {
			best = cur
		}
		if cur.idx == a.goalIdx {
			return cur, best, false
		}

		a.expand(cur)
	}

	return nil, best, false
}

var (
	cardinalSteps = [4][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
	diagonalSteps = [4][2]int{{1, -1}, {1, 1}, {-1, 1}, {-1, -1}}
)

func (a *astar) expand(cur *pathNode) {
	for _, d := range cardinalSteps {
		a.relax(cur, cur.x+d[0], cur.z+d[1], CostStraight)
	}
	if !a.diag {
		return
	}
	for _, d := range diagonalSteps {
		nx, nz := cur.x+d[0], cur.z+d[1]
		// No corner cutting: both orthogonal cells must be open.
		if a.grid.IsBlocked(nx, cur.z) || a.grid.IsBlocked(cur.x, nz) {
			continue
		}
		a.relax(cur, nx, nz, CostDiagonal)
	}
}

// relax offers the route via cur to (nx, nz), using heap.Fix as decrease-key.
func (a *astar) relax(cur *pathNode, nx, nz int, step float64) {
	if a.grid.IsBlocked(nx, nz) {
		return
	}
	idx := a.grid.Index(nx, nz)
	g := cur.g + step

	n, seen := a.nodes[idx]
	if !seen {
		n = &pathNode{idx: idx, x: nx, z: nz, parent: cur, g: g, h: a.heuristic(nx, nz)}
		n.f = n.g + n.h
		a.nodes[idx] = n
		heap.Push(&a.open, n)
		return
	}
	if n.closed || g >= n.g {
		return
	}
	n.parent = cur
	n.g = g
	n.f = g + n.h
	heap.Fix(&a.open, n.heapIndex)
}

// heuristic is the Euclidean distance to the goal in cell units.
func (a *astar) heuristic(x, z int) float64 {
	dx := float64(x - a.goalX)
	dz := float64(z - a.goalZ)
	return math.Sqrt(dx*dx + dz*dz)
}

func (a *astar) reconstruct(end *pathNode, sampleY float64) []r3.Vec {
	path := make([]r3.Vec, 0, 32)
	for n := end; n != nil; n = n.parent {
		path = append(path, a.grid.CellCenterWorld(n.x, n.z, sampleY))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// nodeHeap is the open set: min-heap by f, ties broken by cell index so the
// pop order is reproducible.
type nodeHeap []*pathNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].idx < h[j].idx
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *nodeHeap) Push(x any) {
	n := x.(*pathNode)
	n.heapIndex = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil // GC
	node.heapIndex = -1
	*h = old[:n-1]
	return node
}

// PathCost sums the edge lengths of path in cell units.
func PathCost(path []r3.Vec, cellSize float64) float64 {
	if cellSize <= 0 {
		return 0
	}
	var total float64
	for i := 1; i < len(path); i++ {
		d := r3.Sub(path[i], path[i-1])
		d.Y = 0
		total += r3.Norm(d) / cellSize
	}
	return total
}
