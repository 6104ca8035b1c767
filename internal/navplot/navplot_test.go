package navplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/udisondev/navgrid/internal/navgrid"
)

func testGrid() *navgrid.Grid {
	g := navgrid.NewGrid(navgrid.Volume{
		Center:      r3.Vec{X: 5, Y: 1, Z: 5},
		HalfExtents: r3.Vec{X: 5, Y: 1, Z: 5},
	}, 1, false)
	for z := 0; z < 8; z++ {
		g.SetBlocked(5, z, true)
	}
	return g
}

func TestSaveWritesPNG(t *testing.T) {
	g := testGrid()
	path := navgrid.FindPath(g,
		r3.Vec{X: 0.5, Y: 1, Z: 0.5},
		r3.Vec{X: 9.5, Y: 1, Z: 0.5},
		g.CenterY(),
		navgrid.Settings{AllowDiagonals: true},
	)
	require.NotEmpty(t, path)

	file := filepath.Join(t.TempDir(), "out", "grid.png")
	require.NoError(t, Save(file, g, path, "test"))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestPlotEmptyGrid(t *testing.T) {
	g := navgrid.NewGrid(navgrid.Volume{HalfExtents: r3.Vec{X: 1, Y: 1, Z: 1}}, 1, false)
	p, err := Plot(g, nil, "empty")
	require.NoError(t, err)
	assert.Equal(t, -1.0, p.X.Min)
	assert.Equal(t, 1.0, p.Y.Max)
}

func TestPlotNilGrid(t *testing.T) {
	_, err := Plot(nil, nil, "")
	assert.Error(t, err)
}

func TestListenerSavesOnRebuild(t *testing.T) {
	file := filepath.Join(t.TempDir(), "live.png")
	var routed bool
	fn := Listener(file, func(g *navgrid.Grid) []r3.Vec {
		routed = true
		return nil
	}, nil)

	fn(navgrid.RebuildEvent{Version: 3, Grid: testGrid(), Reason: "tick"})

	assert.True(t, routed)
	assert.FileExists(t, file)
}
