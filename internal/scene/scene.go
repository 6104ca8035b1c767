// Package scene loads YAML scene descriptions: the world volume, static
// physics obstacles, exclusion volumes and terrain height providers.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/udisondev/navgrid/internal/navgrid"
	"github.com/udisondev/navgrid/internal/physics"
)

var (
	ErrUnknownShape = errors.New("scene: unknown shape")
	ErrUnknownKind  = errors.New("scene: unknown volume kind")
	ErrInvalidScene = errors.New("scene: invalid scene")
)

// volumeNamespace seeds ids for volumes that do not declare one, so
// reloading the same file yields the same ids.
var volumeNamespace = uuid.MustParse("6f1c3c52-3a7e-4d0b-9b8e-2f6a4c1d9e10")

// File is the on-disk layout of a scene.
type File struct {
	Volume    VolumeSpec      `yaml:"volume"`
	Obstacles []ObstacleSpec  `yaml:"obstacles"`
	Volumes   []ExclusionSpec `yaml:"volumes"`
	Terrain   TerrainSpec     `yaml:"terrain"`
}

type VolumeSpec struct {
	Center      []float64 `yaml:"center"`
	HalfExtents []float64 `yaml:"half_extents"`
}

type ObstacleSpec struct {
	ID     string    `yaml:"id"`
	Shape  string    `yaml:"shape"` // box | circle
	Min    []float64 `yaml:"min"`
	Max    []float64 `yaml:"max"`
	Center []float64 `yaml:"center"` // circle: x, z
	Radius float64   `yaml:"radius"`
	Y      []float64 `yaml:"y"` // circle: min, max
	Layer  uint32    `yaml:"layer"`
}

type BoundsSpec struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

type ExclusionSpec struct {
	ID              string       `yaml:"id"`
	Kind            string       `yaml:"kind"`
	Shape           string       `yaml:"shape"` // sphere | shape
	Center          []float64    `yaml:"center"`
	Radius          float64      `yaml:"radius"`
	Min             []float64    `yaml:"min"`
	Max             []float64    `yaml:"max"`
	Children        []BoundsSpec `yaml:"children"`
	IncludeChildren bool         `yaml:"include_children"`
}

type TerrainSpec struct {
	Heightmaps []HeightmapSpec `yaml:"heightmaps"`
	Planes     []PlaneSpec     `yaml:"planes"`
}

type HeightmapSpec struct {
	Origin  []float64 `yaml:"origin"` // x, z
	Spacing float64   `yaml:"spacing"`
	Cols    int       `yaml:"cols"`
	Rows    int       `yaml:"rows"`
	Heights []float64 `yaml:"heights"`
}

type PlaneSpec struct {
	Min    []float64 `yaml:"min"` // x, z
	Max    []float64 `yaml:"max"` // x, z
	Base   float64   `yaml:"base"`
	SlopeX float64   `yaml:"slope_x"`
	SlopeZ float64   `yaml:"slope_z"`
}

// Scene is a decoded and validated scene file.
type Scene struct {
	Name      string
	Volume    navgrid.Volume
	Obstacles []physics.Obstacle
	Volumes   []navgrid.ExclusionVolume
	Terrain   []navgrid.HeightProvider
}

// Load reads and validates the scene at path.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("loading scene %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scene from YAML. name seeds ids of anonymous volumes.
func Parse(name string, data []byte) (*Scene, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	return f.build(name)
}

func (f File) build(name string) (*Scene, error) {
	s := &Scene{Name: name}

	center, err := vec3(f.Volume.Center, "volume.center")
	if err != nil {
		return nil, err
	}
	half, err := vec3(f.Volume.HalfExtents, "volume.half_extents")
	if err != nil {
		return nil, err
	}
	s.Volume = navgrid.Volume{Center: center, HalfExtents: half}.Clamped()

	for i, o := range f.Obstacles {
		obs, err := o.obstacle(i)
		if err != nil {
			return nil, err
		}
		s.Obstacles = append(s.Obstacles, obs)
	}

	seen := make(map[uuid.UUID]bool, len(f.Volumes))
	for i, v := range f.Volumes {
		vol, err := v.volume(name, i)
		if err != nil {
			return nil, err
		}
		if seen[vol.ID()] {
			return nil, fmt.Errorf("%w: volumes[%d]: duplicate id %s", ErrInvalidScene, i, vol.ID())
		}
		seen[vol.ID()] = true
		s.Volumes = append(s.Volumes, vol)
	}

	for i, h := range f.Terrain.Heightmaps {
		origin, err := vec2(h.Origin, fmt.Sprintf("terrain.heightmaps[%d].origin", i))
		if err != nil {
			return nil, err
		}
		hm, err := navgrid.NewHeightmap(origin[0], origin[1], h.Spacing, h.Cols, h.Rows, h.Heights)
		if err != nil {
			return nil, fmt.Errorf("%w: terrain.heightmaps[%d]: %w", ErrInvalidScene, i, err)
		}
		s.Terrain = append(s.Terrain, hm)
	}
	for i, p := range f.Terrain.Planes {
		where := fmt.Sprintf("terrain.planes[%d]", i)
		lo, err := vec2(p.Min, where+".min")
		if err != nil {
			return nil, err
		}
		hi, err := vec2(p.Max, where+".max")
		if err != nil {
			return nil, err
		}
		s.Terrain = append(s.Terrain, navgrid.PlaneTerrain{
			MinX: lo[0], MinZ: lo[1], MaxX: hi[0], MaxZ: hi[1],
			Base: p.Base, SlopeX: p.SlopeX, SlopeZ: p.SlopeZ,
		})
	}
	return s, nil
}

func (o ObstacleSpec) obstacle(i int) (physics.Obstacle, error) {
	where := fmt.Sprintf("obstacles[%d]", i)
	id := o.ID
	if id == "" {
		id = where
	}
	switch strings.ToLower(o.Shape) {
	case "", "box":
		lo, err := vec3(o.Min, where+".min")
		if err != nil {
			return physics.Obstacle{}, err
		}
		hi, err := vec3(o.Max, where+".max")
		if err != nil {
			return physics.Obstacle{}, err
		}
		return physics.Obstacle{ID: id, Kind: physics.ShapeBox, Min: lo, Max: hi, Layer: o.Layer}, nil
	case "circle":
		c, err := vec2(o.Center, where+".center")
		if err != nil {
			return physics.Obstacle{}, err
		}
		y, err := vec2(o.Y, where+".y")
		if err != nil {
			return physics.Obstacle{}, err
		}
		return physics.Obstacle{
			ID:     id,
			Kind:   physics.ShapeCircle,
			Center: r3.Vec{X: c[0], Z: c[1]},
			Radius: o.Radius,
			Min:    r3.Vec{Y: y[0]},
			Max:    r3.Vec{Y: y[1]},
			Layer:  o.Layer,
		}, nil
	default:
		return physics.Obstacle{}, fmt.Errorf("%w %q in %s", ErrUnknownShape, o.Shape, where)
	}
}

func (v ExclusionSpec) volume(scene string, i int) (navgrid.ExclusionVolume, error) {
	where := fmt.Sprintf("volumes[%d]", i)
	kind, ok := navgrid.ParseVolumeKind(v.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q in %s", ErrUnknownKind, v.Kind, where)
	}

	id := uuid.NewSHA1(volumeNamespace, []byte(fmt.Sprintf("%s/%d", scene, i)))
	if v.ID != "" {
		parsed, err := uuid.Parse(v.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.id: %w", ErrInvalidScene, where, err)
		}
		id = parsed
	}

	switch strings.ToLower(v.Shape) {
	case "sphere":
		c, err := vec3(v.Center, where+".center")
		if err != nil {
			return nil, err
		}
		return navgrid.NewSphereVolumeWithID(id, kind, c, v.Radius), nil
	case "", "shape", "box":
		root, err := bounds(v.Min, v.Max, where)
		if err != nil {
			return nil, err
		}
		children := make([]r3.Box, 0, len(v.Children))
		for j, ch := range v.Children {
			b, err := bounds(ch.Min, ch.Max, fmt.Sprintf("%s.children[%d]", where, j))
			if err != nil {
				return nil, err
			}
			children = append(children, b)
		}
		return navgrid.NewShapeVolumeWithID(id, kind, root, children, v.IncludeChildren), nil
	default:
		return nil, fmt.Errorf("%w %q in %s", ErrUnknownShape, v.Shape, where)
	}
}

func bounds(lo, hi []float64, where string) (r3.Box, error) {
	a, err := vec3(lo, where+".min")
	if err != nil {
		return r3.Box{}, err
	}
	b, err := vec3(hi, where+".max")
	if err != nil {
		return r3.Box{}, err
	}
	return r3.Box{Min: a, Max: b}, nil
}

func vec3(v []float64, where string) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, fmt.Errorf("%w: %s: want [x, y, z], got %d values", ErrInvalidScene, where, len(v))
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

func vec2(v []float64, where string) ([2]float64, error) {
	if len(v) != 2 {
		return [2]float64{}, fmt.Errorf("%w: %s: want 2 values, got %d", ErrInvalidScene, where, len(v))
	}
	return [2]float64{v[0], v[1]}, nil
}

// Apply loads s into world and reg once. Use an Applier to keep them in
// sync across reloads.
func (s *Scene) Apply(world *physics.World, reg *navgrid.Registry) error {
	return NewApplier(world, reg).Apply(s)
}

// Applier syncs successive scenes into a physics world and a volume
// registry. Volumes it registered that are missing from the next scene are
// unregistered; volumes registered by others are left alone.
type Applier struct {
	mu    sync.Mutex
	world *physics.World
	reg   *navgrid.Registry
	owned map[uuid.UUID]navgrid.ExclusionVolume
}

func NewApplier(world *physics.World, reg *navgrid.Registry) *Applier {
	return &Applier{
		world: world,
		reg:   reg,
		owned: make(map[uuid.UUID]navgrid.ExclusionVolume),
	}
}

// Apply replaces the world obstacles and registers the scene volumes.
func (a *Applier) Apply(s *Scene) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.world != nil {
		if err := a.world.Reset(s.Obstacles); err != nil {
			return fmt.Errorf("applying scene %s: %w", s.Name, err)
		}
	}
	if a.reg == nil {
		return nil
	}

	next := make(map[uuid.UUID]navgrid.ExclusionVolume, len(s.Volumes))
	for _, v := range s.Volumes {
		next[v.ID()] = v
	}
	for id, old := range a.owned {
		if _, ok := next[id]; !ok {
			a.reg.Unregister(old)
		}
	}
	for _, v := range s.Volumes {
		a.reg.Register(v)
	}
	a.owned = next
	return nil
}
