package fmm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrauss/FMM2D/internal/fmm"
	"github.com/kbrauss/FMM2D/internal/pointgen"
)

func TestDirect(t *testing.T) {
	sources := []complex128{0, 1 + 0i, 0.5 + 0.5i}
	charges := []float64{1, 2, -1}
	targets := []complex128{0.5 + 0i, 0.5 + 0.5i}

	res, err := fmm.Direct(sources, charges, targets)
	require.NoError(t, err)
	require.Len(t, res.Potentials, 2)

	want0 := math.Log(0.5) + 2*math.Log(0.5) - math.Log(0.5)
	want1 := math.Log(math.Sqrt(0.5)) + 2*math.Log(math.Sqrt(0.5))
	assert.InDelta(t, want0, res.Potentials[0], 1e-15)
	assert.InDelta(t, want1, res.Potentials[1], 1e-15)
	assert.EqualValues(t, 5, res.Pairs)
	assert.EqualValues(t, 1, res.CoincidentPairs)
}

func TestDirect_Errors(t *testing.T) {
	_, err := fmm.Direct([]complex128{0.1}, nil, nil)
	assert.ErrorIs(t, err, fmm.ErrChargeMismatch)

	_, err = fmm.Direct([]complex128{0.1}, []float64{math.NaN()}, nil)
	assert.ErrorIs(t, err, fmm.ErrNonFiniteInput)
}

func TestMaxAbsError(t *testing.T) {
	e, at := fmm.MaxAbsError([]float64{1, 2, 3}, []float64{1, 2.5, 2.9})
	assert.InDelta(t, 0.5, e, 1e-15)
	assert.Equal(t, 1, at)

	_, at = fmm.MaxAbsError([]float64{1}, nil)
	assert.Equal(t, -1, at)
}

func TestSelectDepth(t *testing.T) {
	lattice, err := pointgen.Lattice(3)
	require.NoError(t, err)

	tests := []struct {
		name      string
		sources   []complex128
		targets   []complex128
		min, max  int
		threshold int
		want      int
	}{
		{"four per leaf", lattice, nil, 1, 8, 4, 3},
		{"one per leaf", lattice, nil, 1, 8, 1, 4},
		{"targets decide", nil, lattice, 2, 8, 16, 2},
		{"already fine at min", lattice, lattice, 5, 8, 1, 5},
		{"capped by max", lattice, nil, 1, 3, 1, 3},
		{"coincident never separate", []complex128{0.3 + 0.3i, 0.3 + 0.3i}, nil, 1, 6, 1, 6},
		{"empty", nil, nil, 2, 8, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fmm.SelectDepth(tt.sources, tt.targets, tt.min, tt.max, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectDepth_AgreesWithTree(t *testing.T) {
	lattice, err := pointgen.Lattice(2)
	require.NoError(t, err)
	level, err := fmm.SelectDepth(lattice, lattice, 1, 6, 4)
	require.NoError(t, err)

	tree, err := fmm.Build(lattice, pointgen.UnitCharges(len(lattice)), lattice, opts(4, level))
	require.NoError(t, err)
	assert.LessOrEqual(t, tree.ClusterThreshold(), 4)

	coarser, err := fmm.Build(lattice, pointgen.UnitCharges(len(lattice)), lattice, opts(4, level-1))
	require.NoError(t, err)
	assert.Greater(t, coarser.ClusterThreshold(), 4)
}

func TestSelectDepth_Errors(t *testing.T) {
	tests := []struct {
		name      string
		min, max  int
		threshold int
	}{
		{"min below one", 0, 4, 5},
		{"max too deep", 2, fmm.MaxLevel + 1, 5},
		{"inverted", 5, 3, 5},
		{"zero threshold", 2, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fmm.SelectDepth(nil, nil, tt.min, tt.max, tt.threshold)
			assert.ErrorIs(t, err, fmm.ErrInvalidRange)
		})
	}

	_, err := fmm.SelectDepth([]complex128{2 + 0i}, nil, 1, 4, 1)
	assert.ErrorIs(t, err, fmm.ErrPointOutOfDomain)
}
