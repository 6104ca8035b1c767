package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/udisondev/navgrid/internal/config"
	"github.com/udisondev/navgrid/internal/db"
	"github.com/udisondev/navgrid/internal/navgrid"
	"github.com/udisondev/navgrid/internal/navplot"
	"github.com/udisondev/navgrid/internal/physics"
	"github.com/udisondev/navgrid/internal/scene"
)

const DefaultConfigPath = "config/navgrid.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	scenePath  string
	from, to   string
	bestEffort bool
	plotFile   string
	watch      bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("navgrid", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "engine config file (default $NAVGRID_CONFIG or "+DefaultConfigPath+")")
	fs.StringVar(&o.scenePath, "scene", "", "scene file")
	fs.StringVar(&o.from, "from", "", "path start as x,y,z")
	fs.StringVar(&o.to, "to", "", "path goal as x,y,z")
	fs.BoolVar(&o.bestEffort, "best-effort", false, "return a partial path when the goal is unreachable")
	fs.StringVar(&o.plotFile, "plot", "", "write the grid and path to this image file")
	fs.BoolVar(&o.watch, "watch", false, "keep running and rebuild when the scene file changes")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.scenePath == "" {
		return o, errors.New("-scene is required")
	}
	if (o.from == "") != (o.to == "") {
		return o, errors.New("-from and -to must be given together")
	}
	if o.configPath == "" {
		o.configPath = DefaultConfigPath
		if p := os.Getenv("NAVGRID_CONFIG"); p != "" {
			o.configPath = p
		}
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadEngine(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
	slog.Info("navgrid starting", "config", opts.configPath, "scene", opts.scenePath, "log_level", cfg.LogLevel)

	sc, err := scene.Load(opts.scenePath)
	if err != nil {
		return fmt.Errorf("loading scene: %w", err)
	}

	world := physics.NewWorld()
	registry := navgrid.NewRegistry()
	applier := scene.NewApplier(world, registry)
	if err := applier.Apply(sc); err != nil {
		return err
	}
	slog.Info("scene loaded",
		"obstacles", len(sc.Obstacles),
		"volumes", len(sc.Volumes),
		"terrain", len(sc.Terrain))

	if cfg.Database.Enabled {
		if err := syncVolumes(ctx, cfg.Database.DSN(), sc, registry); err != nil {
			return err
		}
	}

	coord := navgrid.NewCoordinator(
		cfg.Coordinator(sc.Volume, world, sc.Terrain),
		navgrid.WithRegistry(registry),
	)
	defer coord.Close()
	if !cfg.AutoDiscoverVolumes {
		adoptVolumes(coord, registry)
	}

	var q *pathQuery
	if opts.from != "" {
		if q, err = newPathQuery(opts, cfg.Settings()); err != nil {
			return err
		}
	}

	if !opts.watch {
		if q != nil {
			printResult(stdout, coord.Search(q.start, q.goal, q.bestEffort))
		} else {
			coord.RebuildNow()
		}
		if opts.plotFile != "" {
			g := coord.Grid()
			if err := navplot.Save(opts.plotFile, g, q.route(g), opts.scenePath); err != nil {
				return err
			}
			slog.Info("plot written", "file", opts.plotFile)
		}
		return nil
	}

	return watch(ctx, opts, cfg, coord, applier, registry, q, stdout)
}

// syncVolumes stores the scene volumes and registers every persisted volume.
func syncVolumes(ctx context.Context, dsn string, sc *scene.Scene, registry *navgrid.Registry) error {
	database, err := db.New(ctx, dsn)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, dsn); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store := database.Volumes()
	for _, v := range sc.Volumes {
		if err := store.Save(ctx, v); err != nil {
			return err
		}
	}
	n, err := store.LoadInto(ctx, registry)
	if err != nil {
		return fmt.Errorf("loading stored volumes: %w", err)
	}
	slog.Info("stored volumes loaded", "count", n)
	return nil
}

func watch(
	ctx context.Context,
	opts options,
	cfg config.Engine,
	coord *navgrid.Coordinator,
	applier *scene.Applier,
	registry *navgrid.Registry,
	q *pathQuery,
	stdout io.Writer,
) error {
	if opts.plotFile != "" {
		defer coord.OnRebuilt(navplot.Listener(opts.plotFile, q.route, slog.Default()))()
	}
	if q != nil {
		defer coord.OnRebuilt(func(ev navgrid.RebuildEvent) {
			printResult(stdout, q.search(ev.Grid))
		})()
	}

	w, err := scene.NewWatcher(scene.DefaultCoalesce, opts.scenePath)
	if err != nil {
		return fmt.Errorf("watching scene: %w", err)
	}
	defer w.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := coord.Run(gctx, cfg.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("tick loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("watching scene", "file", opts.scenePath)
		for {
			select {
			case <-gctx.Done():
				return nil
			case path, ok := <-w.Events:
				if !ok {
					return nil
				}
				reload(path, coord, applier, registry, cfg.AutoDiscoverVolumes)
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				slog.Warn("scene watcher error", "err", err)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// reload applies a changed scene. A broken file keeps the previous scene.
// Without auto-discovery the coordinator's volume list is resynced from
// registry.
func reload(path string, coord *navgrid.Coordinator, applier *scene.Applier, registry *navgrid.Registry, autoDiscover bool) {
	sc, err := scene.Load(path)
	if err != nil {
		slog.Warn("scene reload failed, keeping previous scene", "file", path, "err", err)
		return
	}
	if err := applier.Apply(sc); err != nil {
		slog.Warn("scene apply failed", "file", path, "err", err)
		coord.MarkDirty()
		return
	}
	if g := coord.Grid(); g != nil && g.Bounds() != sc.Volume.Bounds() {
		slog.Warn("scene volume changed, restart to resize the grid", "file", path)
	}
	if !autoDiscover {
		adoptVolumes(coord, registry)
	}
	coord.SetTerrain(sc.Terrain)
	slog.Info("scene reloaded", "file", path, "obstacles", len(sc.Obstacles), "volumes", len(sc.Volumes))
}

// adoptVolumes makes the coordinator's managed volumes match registry.
func adoptVolumes(coord *navgrid.Coordinator, registry *navgrid.Registry) {
	current := make(map[uuid.UUID]bool)
	for _, v := range registry.Volumes() {
		current[v.ID()] = true
		coord.AddVolume(v)
	}
	for _, v := range coord.Volumes() {
		if !current[v.ID()] {
			coord.RemoveVolume(v.ID())
		}
	}
}

// pathQuery is the -from/-to request, re-run on every rebuild in watch mode.
type pathQuery struct {
	start, goal r3.Vec
	bestEffort  bool
	settings    navgrid.Settings
}

func newPathQuery(opts options, s navgrid.Settings) (*pathQuery, error) {
	start, err := parseVec(opts.from)
	if err != nil {
		return nil, fmt.Errorf("parsing -from: %w", err)
	}
	goal, err := parseVec(opts.to)
	if err != nil {
		return nil, fmt.Errorf("parsing -to: %w", err)
	}
	s.ReturnBestEffort = opts.bestEffort
	return &pathQuery{start: start, goal: goal, bestEffort: opts.bestEffort, settings: s}, nil
}

func (q *pathQuery) search(g *navgrid.Grid) navgrid.SearchResult {
	if g == nil {
		return navgrid.SearchResult{Status: navgrid.StatusRejected}
	}
	return navgrid.Search(g, q.start, q.goal, g.CenterY(), q.settings)
}

// route returns the waypoints for g. A nil query plots no path.
func (q *pathQuery) route(g *navgrid.Grid) []r3.Vec {
	if q == nil {
		return nil
	}
	return q.search(g).Path
}

func printResult(w io.Writer, res navgrid.SearchResult) {
	fmt.Fprintf(w, "status=%s expanded=%d cost=%.3f waypoints=%d\n", res.Status, res.Expanded, res.Cost, len(res.Path))
	for _, p := range res.Path {
		fmt.Fprintf(w, "%.3f,%.3f,%.3f\n", p.X, p.Y, p.Z)
	}
}

// parseVec parses "x,y,z".
func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("component %d of %q: %w", i, s, err)
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
