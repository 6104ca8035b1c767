package navgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineIteratorVisitsEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		sx, sz, ex, ez int
		wantLen        int
	}{
		{"horizontal", 0, 0, 5, 0, 6},
		{"vertical", 2, 0, 2, 3, 4},
		{"negative", 5, 5, 2, 2, 4},
		{"single", 3, 3, 3, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newLineIterator(tt.sx, tt.sz, tt.ex, tt.ez)
			var cells [][2]int
			for it.Next() {
				cells = append(cells, [2]int{it.x, it.z})
			}
			assert.Len(t, cells, tt.wantLen)
			assert.Equal(t, [2]int{tt.sx, tt.sz}, cells[0])
			assert.Equal(t, [2]int{tt.ex, tt.ez}, cells[len(cells)-1])
		})
	}
}

func TestHasLineOfSight(t *testing.T) {
	g := openGrid(10, 10)
	assert.True(t, HasLineOfSight(g, center(0, 0), center(9, 4)))

	g.SetBlocked(5, 2, true)
	assert.False(t, HasLineOfSight(g, center(0, 2), center(9, 2)))
	assert.True(t, HasLineOfSight(g, center(0, 3), center(9, 3)))

	assert.False(t, HasLineOfSight(nil, center(0, 0), center(1, 1)))
	assert.False(t, HasLineOfSight(g, center(-1, 0), center(1, 1)))
}

func TestHasLineOfSightCorner(t *testing.T) {
	g := openGrid(3, 3)
	g.SetBlocked(1, 0, true)
	assert.False(t, HasLineOfSight(g, center(0, 0), center(1, 1)), "diagonal cuts a blocked corner")
	assert.True(t, HasLineOfSight(g, center(0, 1), center(2, 1)))
}

func TestSmoothPathKeepsCorners(t *testing.T) {
	g := openGrid(6, 6)
	for z := range 5 {
		g.SetBlocked(3, z, true)
	}

	raw := FindPath(g, center(0, 0), center(5, 0), 1, Settings{AllowDiagonals: true})
	assertContiguous(t, g, cellsOf(t, g, raw), true)

	smooth := SmoothPath(g, raw)
	assert.Less(t, len(smooth), len(raw))
	assert.Equal(t, raw[0], smooth[0])
	assert.Equal(t, raw[len(raw)-1], smooth[len(smooth)-1])
	for i := 1; i < len(smooth); i++ {
		assert.True(t, HasLineOfSight(g, smooth[i-1], smooth[i]), "segment %d", i)
	}
}
