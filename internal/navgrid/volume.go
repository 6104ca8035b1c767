package navgrid

import (
	"bytes"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// VolumeKind distinguishes the two canonical exclusion volume flavours.
// The rasterizer treats both the same way.
type VolumeKind uint8

const (
	KindOffLimits VolumeKind = iota // volumetric off-limits region
	KindNoPathing                   // simple no-pathing marker
)

// String implements fmt.Stringer.
func (k VolumeKind) String() string {
	switch k {
	case KindOffLimits:
		return "off_limits"
	case KindNoPathing:
		return "no_pathing"
	default:
		return "unknown"
	}
}

// ParseVolumeKind is the inverse of VolumeKind.String.
func ParseVolumeKind(s string) (VolumeKind, bool) {
	switch s {
	case "off_limits", "":
		return KindOffLimits, true
	case "no_pathing":
		return KindNoPathing, true
	}
	return 0, false
}

// ExclusionVolume is a world region marked non-traversable independently of
// physical geometry.
type ExclusionVolume interface {
	ID() uuid.UUID
	Kind() VolumeKind
	WorldBounds() r3.Box
}

// SphereVolume excludes the bounding box of a sphere.
type SphereVolume struct {
	id   uuid.UUID
	kind VolumeKind

	mu     sync.RWMutex
	center r3.Vec
	radius float64
}

// NewSphereVolume creates a sphere volume with a fresh id.
func NewSphereVolume(kind VolumeKind, center r3.Vec, radius float64) *SphereVolume {
	return NewSphereVolumeWithID(uuid.New(), kind, center, radius)
}

// NewSphereVolumeWithID creates a sphere volume with a known id (e.g. loaded from storage).
func NewSphereVolumeWithID(id uuid.UUID, kind VolumeKind, center r3.Vec, radius float64) *SphereVolume {
	return &SphereVolume{id: id, kind: kind, center: center, radius: math.Abs(radius)}
}

func (s *SphereVolume) ID() uuid.UUID    { return s.id }
func (s *SphereVolume) Kind() VolumeKind { return s.kind }

// Center returns the current sphere center.
func (s *SphereVolume) Center() r3.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.center
}

// Radius returns the current sphere radius.
func (s *SphereVolume) Radius() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radius
}

// SetCenter moves the sphere. Callers notify the owning Registry via Changed.
func (s *SphereVolume) SetCenter(c r3.Vec) {
	s.mu.Lock()
	s.center = c
	s.mu.Unlock()
}

// SetRadius resizes the sphere.
func (s *SphereVolume) SetRadius(r float64) {
	s.mu.Lock()
	s.radius = math.Abs(r)
	s.mu.Unlock()
}

// WorldBounds implements ExclusionVolume.
func (s *SphereVolume) WorldBounds() r3.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ext := r3.Vec{X: s.radius, Y: s.radius, Z: s.radius}
	return r3.Box{Min: r3.Sub(s.center, ext), Max: r3.Add(s.center, ext)}
}

// ShapeVolume excludes bounds derived from an object's shapes. Child bounds
// only count when IncludeChildren is set.
type ShapeVolume struct {
	id   uuid.UUID
	kind VolumeKind

	mu              sync.RWMutex
	root            r3.Box
	children        []r3.Box
	includeChildren bool
}

// NewShapeVolume creates a shape volume with a fresh id.
func NewShapeVolume(kind VolumeKind, root r3.Box, children []r3.Box, includeChildren bool) *ShapeVolume {
	return NewShapeVolumeWithID(uuid.New(), kind, root, children, includeChildren)
}

// NewShapeVolumeWithID creates a shape volume with a known id.
func NewShapeVolumeWithID(id uuid.UUID, kind VolumeKind, root r3.Box, children []r3.Box, includeChildren bool) *ShapeVolume {
	return &ShapeVolume{
		id:              id,
		kind:            kind,
		root:            canonBox(root),
		children:        slices.Clone(children),
		includeChildren: includeChildren,
	}
}

func (s *ShapeVolume) ID() uuid.UUID    { return s.id }
func (s *ShapeVolume) Kind() VolumeKind { return s.kind }

// IncludeChildren reports the subtree scope flag.
func (s *ShapeVolume) IncludeChildren() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.includeChildren
}

// Root returns the bounds of the object itself.
func (s *ShapeVolume) Root() r3.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Children returns a copy of the child bounds.
func (s *ShapeVolume) Children() []r3.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.children)
}

// SetShapes replaces root and child bounds.
func (s *ShapeVolume) SetShapes(root r3.Box, children []r3.Box, includeChildren bool) {
	s.mu.Lock()
	s.root = canonBox(root)
	s.children = slices.Clone(children)
	s.includeChildren = includeChildren
	s.mu.Unlock()
}

// WorldBounds implements ExclusionVolume.
func (s *ShapeVolume) WorldBounds() r3.Box {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.root
	if s.includeChildren {
		for _, c := range s.children {
			b = unionBox(b, canonBox(c))
		}
	}
	return b
}

func canonBox(b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: math.Min(b.Min.X, b.Max.X), Y: math.Min(b.Min.Y, b.Max.Y), Z: math.Min(b.Min.Z, b.Max.Z)},
		Max: r3.Vec{X: math.Max(b.Min.X, b.Max.X), Y: math.Max(b.Min.Y, b.Max.Y), Z: math.Max(b.Min.Z, b.Max.Z)},
	}
}

func unionBox(a, b r3.Box) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y), Z: math.Min(a.Min.Z, b.Min.Z)},
		Max: r3.Vec{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y), Z: math.Max(a.Max.Z, b.Max.Z)},
	}
}

// containsPoint reports whether p lies inside b, faces included.
func containsPoint(b r3.Box, p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// VolumeSource is a discoverable set of exclusion volumes.
type VolumeSource interface {
	Volumes() []ExclusionVolume
}

// Registry tracks live exclusion volumes and fans out change notifications to
// subscribers. Whoever owns volume lifecycle calls Register/Unregister/Changed.
type Registry struct {
	mu      sync.RWMutex
	volumes map[uuid.UUID]ExclusionVolume
	subs    map[uint64]func(ExclusionVolume)
	nextSub uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		volumes: make(map[uuid.UUID]ExclusionVolume),
		subs:    make(map[uint64]func(ExclusionVolume)),
	}
}

// Register adds or replaces v and notifies subscribers.
func (r *Registry) Register(v ExclusionVolume) {
	if v == nil {
		return
	}
	r.mu.Lock()
	r.volumes[v.ID()] = v
	r.mu.Unlock()
	r.notify(v)
}

// Unregister removes v. Subscribers are notified only if v was known.
func (r *Registry) Unregister(v ExclusionVolume) {
	if v == nil {
		return
	}
	r.mu.Lock()
	_, ok := r.volumes[v.ID()]
	delete(r.volumes, v.ID())
	r.mu.Unlock()
	if ok {
		r.notify(v)
	}
}

// Changed reports that v moved or was resized.
func (r *Registry) Changed(v ExclusionVolume) {
	if v == nil {
		return
	}
	r.notify(v)
}

// Get returns the volume registered under id.
func (r *Registry) Get(id uuid.UUID) (ExclusionVolume, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.volumes[id]
	return v, ok
}

// Len returns the number of registered volumes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.volumes)
}

// Volumes returns a snapshot of registered volumes ordered by id.
func (r *Registry) Volumes() []ExclusionVolume {
	r.mu.RLock()
	out := make([]ExclusionVolume, 0, len(r.volumes))
	for _, v := range r.volumes {
		out = append(out, v)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ExclusionVolume) int {
		ida, idb := a.ID(), b.ID()
		return bytes.Compare(ida[:], idb[:])
	})
	return out
}

// Subscribe registers fn for change notifications. The returned function
// cancels the subscription and is safe to call more than once.
func (r *Registry) Subscribe(fn func(ExclusionVolume)) (cancel func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// notify runs subscribers in subscription order, outside the lock so they
// may call back into r.
func (r *Registry) notify(v ExclusionVolume) {
	r.mu.RLock()
	fns := make([]func(ExclusionVolume), 0, len(r.subs))
	for _, id := range slices.Sorted(maps.Keys(r.subs)) {
		fns = append(fns, r.subs[id])
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}
