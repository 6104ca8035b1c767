// Package navplot renders grid snapshots and paths to image files with
// gonum/plot. It is a debugging aid for the rebuilt event.
package navplot

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/udisondev/navgrid/internal/navgrid"
)

var (
	blockedColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	pathColor    = color.RGBA{R: 30, G: 90, B: 220, A: 255}
)

// Size is the edge length of saved images.
const Size = 8 * vg.Inch

// Plot builds a top-down plot of g with blocked cells as squares and path
// as a polyline. The axes are world X and world Z.
func Plot(g *navgrid.Grid, path []r3.Vec, title string) (*plot.Plot, error) {
	if g == nil {
		return nil, fmt.Errorf("plotting grid: nil grid")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Z"

	b := g.Bounds()
	p.X.Min, p.X.Max = b.Min.X, b.Max.X
	p.Y.Min, p.Y.Max = b.Min.Z, b.Max.Z

	blocked := make(plotter.XYs, 0, g.BlockedCount())
	for z := 0; z < g.Height(); z++ {
		for x := 0; x < g.Width(); x++ {
			if !g.IsBlocked(x, z) {
				continue
			}
			c := g.CellCenterWorld(x, z, g.CenterY())
			blocked = append(blocked, plotter.XY{X: c.X, Y: c.Z})
		}
	}
	if len(blocked) > 0 {
		sc, err := plotter.NewScatter(blocked)
		if err != nil {
			return nil, fmt.Errorf("plotting blocked cells: %w", err)
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Color = blockedColor
		sc.GlyphStyle.Radius = glyphRadius(g)
		p.Add(sc)
		p.Legend.Add("blocked", sc)
	}

	if len(path) > 0 {
		pts := make(plotter.XYs, len(path))
		for i, w := range path {
			pts[i] = plotter.XY{X: w.X, Y: w.Z}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("plotting path: %w", err)
		}
		line.Color = pathColor
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("path", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// glyphRadius sizes cell squares so neighbouring cells roughly touch.
func glyphRadius(g *navgrid.Grid) vg.Length {
	cells := max(g.Width(), g.Height())
	r := Size / vg.Length(2*cells)
	return max(r, vg.Points(0.5))
}

// Save renders g and path into file. The format follows the extension.
func Save(file string, g *navgrid.Grid, path []r3.Vec, title string) error {
	p, err := Plot(g, path, title)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating plot dir %s: %w", dir, err)
		}
	}
	if err := p.Save(Size, Size, file); err != nil {
		return fmt.Errorf("saving plot %s: %w", file, err)
	}
	return nil
}

// Listener returns a rebuilt-event handler that writes each new grid to
// file along with the path returned by route. route may be nil.
func Listener(file string, route func(*navgrid.Grid) []r3.Vec, logger *slog.Logger) func(navgrid.RebuildEvent) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev navgrid.RebuildEvent) {
		var path []r3.Vec
		if route != nil {
			path = route(ev.Grid)
		}
		title := fmt.Sprintf("grid v%d (%s)", ev.Version, ev.Reason)
		if err := Save(file, ev.Grid, path, title); err != nil {
			logger.Warn("navplot: saving plot failed", "file", file, "err", err)
			return
		}
		logger.Debug("navplot: plot saved", "file", file, "version", ev.Version)
	}
}
