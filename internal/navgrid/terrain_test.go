package navgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeightmapValidation(t *testing.T) {
	_, err := NewHeightmap(0, 0, 0, 2, 2, make([]float64, 4))
	assert.Error(t, err)
	_, err = NewHeightmap(0, 0, 1, 1, 2, make([]float64, 2))
	assert.Error(t, err)
	_, err = NewHeightmap(0, 0, 1, 2, 2, make([]float64, 3))
	assert.Error(t, err)
}

func TestHeightmapSample(t *testing.T) {
	// 3x2 lattice with spacing 2 starting at (10, 20):
	//   row 0: 0 2 4
	//   row 1: 4 6 8
	hm, err := NewHeightmap(10, 20, 2, 3, 2, []float64{0, 2, 4, 4, 6, 8})
	require.NoError(t, err)

	assert.True(t, hm.ContainsXZ(10, 20))
	assert.True(t, hm.ContainsXZ(14, 22))
	assert.False(t, hm.ContainsXZ(14.01, 21))
	assert.False(t, hm.ContainsXZ(12, 19.9))

	assert.InDelta(t, 0, hm.SampleHeight(10, 20), 1e-9)
	assert.InDelta(t, 8, hm.SampleHeight(14, 22), 1e-9)
	assert.InDelta(t, 1, hm.SampleHeight(11, 20), 1e-9)
	assert.InDelta(t, 4, hm.SampleHeight(12, 21), 1e-9)
	assert.InDelta(t, 6, hm.SampleHeight(13, 21.5), 1e-9)
}

func TestHeightmapCopiesSamples(t *testing.T) {
	heights := []float64{1, 1, 1, 1}
	hm, err := NewHeightmap(0, 0, 1, 2, 2, heights)
	require.NoError(t, err)

	heights[0] = 100
	assert.InDelta(t, 1, hm.SampleHeight(0, 0), 1e-9)
}

func TestHeightmapMalformedLiteral(t *testing.T) {
	tests := []struct {
		name string
		hm   Heightmap
	}{
		{"single column", Heightmap{Spacing: 1, Cols: 1, Rows: 2, Heights: []float64{1, 2}}},
		{"zero value", Heightmap{}},
		{"short samples", Heightmap{Spacing: 1, Cols: 2, Rows: 2, Heights: []float64{1, 2, 3}}},
		{"negative spacing", Heightmap{Spacing: -1, Cols: 2, Rows: 2, Heights: make([]float64, 4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, tt.hm.ContainsXZ(0, 0))
				assert.Zero(t, tt.hm.SampleHeight(0, 0))
			})
			assert.Equal(t, 7.0, sampleTerrain([]HeightProvider{&tt.hm}, 0, 0, 7))
		})
	}
}

func TestPlaneTerrain(t *testing.T) {
	p := PlaneTerrain{MinX: -1, MinZ: -1, MaxX: 1, MaxZ: 1, Base: 3, SlopeX: 1, SlopeZ: -2}
	assert.True(t, p.ContainsXZ(0, 0))
	assert.False(t, p.ContainsXZ(2, 0))
	assert.InDelta(t, 3+1-2, p.SampleHeight(0, 0), 1e-9)
}

func TestSampleTerrainFallback(t *testing.T) {
	p := PlaneTerrain{MinX: 0, MinZ: 0, MaxX: 1, MaxZ: 1, Base: 3}
	assert.Equal(t, 3.0, sampleTerrain([]HeightProvider{nil, p}, 0.5, 0.5, -1))
	assert.Equal(t, -1.0, sampleTerrain([]HeightProvider{p}, 5, 5, -1))
	assert.Equal(t, -1.0, sampleTerrain(nil, 0.5, 0.5, -1))
}
