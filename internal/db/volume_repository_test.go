package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/udisondev/navgrid/internal/navgrid"
	"github.com/udisondev/navgrid/internal/testutil"
)

func TestVolumeStoreRoundTrip(t *testing.T) {
	store := NewVolumeStore(setupTestDB(t))
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	sphere := navgrid.NewSphereVolume(navgrid.KindOffLimits, r3.Vec{X: 1, Y: 2, Z: 3}, 1.5)
	shape := navgrid.NewShapeVolume(navgrid.KindNoPathing,
		r3.Box{Min: r3.Vec{X: 0, Y: 0, Z: 0}, Max: r3.Vec{X: 1, Y: 1, Z: 1}},
		[]r3.Box{{Min: r3.Vec{X: 1, Y: 0, Z: 0}, Max: r3.Vec{X: 3, Y: 1, Z: 2}}},
		true,
	)
	require.NoError(t, store.Save(ctx, sphere))
	require.NoError(t, store.Save(ctx, shape))

	got, err := store.Get(ctx, sphere.ID())
	require.NoError(t, err)
	gs, ok := got.(*navgrid.SphereVolume)
	require.True(t, ok)
	assert.Equal(t, sphere.Center(), gs.Center())
	assert.Equal(t, 1.5, gs.Radius())
	assert.Equal(t, navgrid.KindOffLimits, gs.Kind())

	got, err = store.Get(ctx, shape.ID())
	require.NoError(t, err)
	gsh, ok := got.(*navgrid.ShapeVolume)
	require.True(t, ok)
	assert.Equal(t, navgrid.KindNoPathing, gsh.Kind())
	assert.True(t, gsh.IncludeChildren())
	assert.Equal(t, shape.Children(), gsh.Children())
	assert.Equal(t, shape.WorldBounds(), gsh.WorldBounds())

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVolumeStoreSaveReplaces(t *testing.T) {
	store := NewVolumeStore(setupTestDB(t))
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	v := navgrid.NewSphereVolume(navgrid.KindOffLimits, r3.Vec{}, 1)
	require.NoError(t, store.Save(ctx, v))
	v.SetRadius(4)
	require.NoError(t, store.Save(ctx, v))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 4.0, all[0].(*navgrid.SphereVolume).Radius())
}

func TestVolumeStoreNotFound(t *testing.T) {
	store := NewVolumeStore(setupTestDB(t))
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	_, err := store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrVolumeNotFound)
	assert.ErrorIs(t, store.Delete(ctx, uuid.New()), ErrVolumeNotFound)
}

func TestVolumeStoreDeleteAndLoadInto(t *testing.T) {
	store := NewVolumeStore(setupTestDB(t))
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	keep := navgrid.NewSphereVolume(navgrid.KindOffLimits, r3.Vec{X: 5}, 1)
	drop := navgrid.NewSphereVolume(navgrid.KindNoPathing, r3.Vec{X: 9}, 1)
	require.NoError(t, store.Save(ctx, keep))
	require.NoError(t, store.Save(ctx, drop))
	require.NoError(t, store.Delete(ctx, drop.ID()))

	reg := navgrid.NewRegistry()
	n, err := store.LoadInto(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := reg.Get(keep.ID())
	require.True(t, ok)
	assert.Equal(t, keep.WorldBounds(), got.WorldBounds())
}

type foreignVolume struct{}

func (foreignVolume) ID() uuid.UUID            { return uuid.Nil }
func (foreignVolume) Kind() navgrid.VolumeKind { return navgrid.KindOffLimits }
func (foreignVolume) WorldBounds() r3.Box      { return r3.Box{} }

func TestVolumeStoreRejectsUnknownTypes(t *testing.T) {
	store := NewVolumeStore(nil)
	err := store.Save(context.Background(), foreignVolume{})
	assert.ErrorIs(t, err, ErrUnsupportedVolume)
}
