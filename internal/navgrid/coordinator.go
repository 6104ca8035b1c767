package navgrid

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// RebuildEvent is delivered to OnRebuilt listeners after a grid is published.
type RebuildEvent struct {
	Version uint64
	Grid    *Grid
	Stats   RebuildStats
	Reason  string
}

// CoordinatorConfig bundles the rasterizer, search and rebuild policy.
type CoordinatorConfig struct {
	Raster       Rasterizer
	Search       Settings
	Debounce     time.Duration
	AutoDiscover bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the clock used to timestamp MarkDirty calls.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger used for rebuild diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
		c.raster.Logger = l
	}
}

// WithRegistry subscribes the coordinator to volume changes in r. With
// auto-discovery on, r is also the source of known volumes.
func WithRegistry(r *Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// Coordinator owns the current grid, tracks staleness and answers queries
// from a guaranteed-fresh snapshot.
//
// States: dirty (initial) -> rebuild -> clean -> MarkDirty -> dirty. Tick
// rebuilds a dirty grid once the debounce window has passed; queries rebuild
// a dirty grid immediately.
type Coordinator struct {
	buildMu sync.Mutex // serialises rebuilds

	mu           sync.Mutex
	raster       Rasterizer
	search       Settings
	debounce     time.Duration
	autoDiscover bool
	volumes      []ExclusionVolume
	grid         *Grid
	version      uint64
	dirty        bool
	dirtyGen     uint64
	lastRequest  time.Time

	listeners    map[uint64]func(RebuildEvent)
	nextListener uint64

	registry    *Registry
	unsubscribe func()
	now         func() time.Time
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator in the dirty state. No grid is built
// until the first query, Tick or RebuildNow.
func NewCoordinator(cfg CoordinatorConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		raster:       cfg.Raster,
		search:       cfg.Search,
		debounce:     cfg.Debounce,
		autoDiscover: cfg.AutoDiscover,
		dirty:        true,
		listeners:    make(map[uint64]func(RebuildEvent)),
		now:          time.Now,
		logger:       slog.Default(),
	}
	if cfg.Raster.Logger != nil {
		c.logger = cfg.Raster.Logger
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry != nil {
		c.unsubscribe = c.registry.Subscribe(func(ExclusionVolume) { c.MarkDirty() })
	}
	return c
}

// Close detaches the coordinator from its registry.
func (c *Coordinator) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// MarkDirty flags the grid as stale and restarts the debounce window. Safe to
// call from any goroutine, any number of times.
func (c *Coordinator) MarkDirty() {
	now := c.now()
	c.mu.Lock()
	c.dirty = true
	c.dirtyGen++
	c.lastRequest = now
	c.mu.Unlock()
}

// IsDirty reports whether the next query will trigger a rebuild.
func (c *Coordinator) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty || c.grid == nil
}

// Version returns the number of completed rebuilds.
func (c *Coordinator) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Grid returns the current snapshot without triggering a rebuild. It may be
// nil or stale.
func (c *Coordinator) Grid() *Grid {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid
}

// Tick runs a background rebuild if the grid is dirty and no MarkDirty call
// happened within the debounce interval before now. Reports whether a rebuild ran.
func (c *Coordinator) Tick(now time.Time) bool {
	c.mu.Lock()
	due := c.dirty && now.Sub(c.lastRequest) >= c.debounce
	c.mu.Unlock()
	if !due {
		return false
	}
	c.rebuild("tick")
	return true
}

// Run calls Tick every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("navgrid tick loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("navgrid tick loop stopping")
			return ctx.Err()
		case <-ticker.C:
			c.Tick(c.now())
		}
	}
}

// RebuildNow rebuilds synchronously regardless of dirty state or debounce and
// returns the new version.
func (c *Coordinator) RebuildNow() uint64 {
	_, v := c.rebuild("forced")
	return v
}

// FindPath returns the route from start to goal on a fresh grid, or nil.
func (c *Coordinator) FindPath(start, goal r3.Vec, bestEffort bool) []r3.Vec {
	return c.Search(start, goal, bestEffort).Path
}

// Search is FindPath with diagnostics.
func (c *Coordinator) Search(start, goal r3.Vec, bestEffort bool) SearchResult {
	g := c.fresh()
	if g == nil {
		return SearchResult{Status: StatusRejected}
	}
	c.mu.Lock()
	s := c.search
	c.mu.Unlock()
	s.ReturnBestEffort = bestEffort
	return Search(g, start, goal, g.CenterY(), s)
}

// IsBlockedAtWorld reports the occupancy of the cell under p on a fresh grid.
// Off-grid points are blocked.
func (c *Coordinator) IsBlockedAtWorld(p r3.Vec) bool {
	g := c.fresh()
	if g == nil {
		return true
	}
	x, z, ok := g.WorldToCell(p)
	if !ok {
		return true
	}
	return g.IsBlocked(x, z)
}

// OnRebuilt registers fn for rebuild notifications. Listeners run on the
// goroutine that performed the rebuild, in registration order.
func (c *Coordinator) OnRebuilt(fn func(RebuildEvent)) (cancel func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// AddVolume adds v to the explicitly managed volume list.
func (c *Coordinator) AddVolume(v ExclusionVolume) {
	if v == nil {
		return
	}
	c.mu.Lock()
	c.volumes = slices.DeleteFunc(c.volumes, func(e ExclusionVolume) bool { return e.ID() == v.ID() })
	c.volumes = append(c.volumes, v)
	c.mu.Unlock()
	c.MarkDirty()
}

// RemoveVolume drops the volume with the given id from the managed list.
func (c *Coordinator) RemoveVolume(id uuid.UUID) {
	c.mu.Lock()
	c.volumes = slices.DeleteFunc(c.volumes, func(e ExclusionVolume) bool { return e.ID() == id })
	c.mu.Unlock()
	c.MarkDirty()
}

// Volumes returns the currently known volumes.
func (c *Coordinator) Volumes() []ExclusionVolume {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.volumes)
}

// SetCollider swaps the collision provider.
func (c *Coordinator) SetCollider(col Collider) {
	c.mu.Lock()
	c.raster.Collider = col
	c.mu.Unlock()
	c.MarkDirty()
}

// SetTerrain replaces the ordered terrain provider list.
func (c *Coordinator) SetTerrain(providers []HeightProvider) {
	c.mu.Lock()
	c.raster.Terrain = slices.Clone(providers)
	c.mu.Unlock()
	c.MarkDirty()
}

// SetSettings replaces the search settings used by queries.
func (c *Coordinator) SetSettings(s Settings) {
	c.mu.Lock()
	c.search = s
	c.mu.Unlock()
}

// fresh returns a grid that reflects every MarkDirty issued before the call.
func (c *Coordinator) fresh() *Grid {
	c.mu.Lock()
	g := c.grid
	stale := c.dirty || g == nil
	c.mu.Unlock()
	if !stale {
		return g
	}
	g, _ = c.rebuildStale("query")
	return g
}

// rebuildStale rebuilds only if the grid is still stale once buildMu is held,
// so concurrent queries on a dirty grid share one rebuild.
func (c *Coordinator) rebuildStale(reason string) (*Grid, uint64) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.mu.Lock()
	if !c.dirty && c.grid != nil {
		g, v := c.grid, c.version
		c.mu.Unlock()
		return g, v
	}
	c.mu.Unlock()
	return c.rebuildLocked(reason)
}

func (c *Coordinator) rebuild(reason string) (*Grid, uint64) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	return c.rebuildLocked(reason)
}

// rebuildLocked must be called with buildMu held.
func (c *Coordinator) rebuildLocked(reason string) (*Grid, uint64) {
	c.mu.Lock()
	if c.autoDiscover && c.registry != nil {
		c.volumes = c.registry.Volumes()
	}
	raster := c.raster
	volumes := slices.Clone(c.volumes)
	gen := c.dirtyGen
	c.mu.Unlock()

	g, stats := raster.Build(volumes)

	c.mu.Lock()
	c.grid = g
	c.version++
	version := c.version
	// A MarkDirty that raced with the build keeps the grid dirty.
	if c.dirtyGen == gen {
		c.dirty = false
	}
	listeners := make([]func(RebuildEvent), 0, len(c.listeners))
	for _, id := range slices.Sorted(maps.Keys(c.listeners)) {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	c.logger.Debug("navgrid rebuilt",
		"reason", reason,
		"version", version,
		"width", g.Width(),
		"height", g.Height(),
		"volumes", len(volumes),
		"blocked", stats.Blocked(),
		"duration", stats.Duration)

	ev := RebuildEvent{Version: version, Grid: g, Stats: stats, Reason: reason}
	for _, fn := range listeners {
		fn(ev)
	}
	return g, version
}
