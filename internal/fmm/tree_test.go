package fmm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrauss/FMM2D/internal/fmm"
	"github.com/kbrauss/FMM2D/internal/pointgen"
	"github.com/kbrauss/FMM2D/internal/spatial"
)

func opts(p, level int) fmm.Options {
	return fmm.Options{Order: p, Level: level}
}

func TestBuild_Errors(t *testing.T) {
	src := []complex128{0.1 + 0.1i, 0.9 + 0.9i}
	q := []float64{1, 1}
	tgt := []complex128{0.5 + 0.5i}

	tests := []struct {
		name    string
		sources []complex128
		charges []float64
		targets []complex128
		opts    fmm.Options
		want    error
	}{
		{"zero order", src, q, tgt, opts(0, 2), fmm.ErrInvalidOrder},
		{"negative order", src, q, tgt, opts(-3, 2), fmm.ErrInvalidOrder},
		{"level zero", src, q, tgt, opts(4, 0), fmm.ErrInvalidLevel},
		{"level too deep", src, q, tgt, opts(4, spatial.MaxLevel+1), fmm.ErrInvalidLevel},
		{"charge mismatch", src, []float64{1}, tgt, opts(4, 2), fmm.ErrChargeMismatch},
		{"source outside", []complex128{1.5 + 0.5i, 0.2}, q, tgt, opts(4, 2), fmm.ErrPointOutOfDomain},
		{"target outside", src, q, []complex128{-0.01 + 0.5i}, opts(4, 2), fmm.ErrPointOutOfDomain},
		{"nan target", src, q, []complex128{complex(math.NaN(), 0.5)}, opts(4, 2), fmm.ErrNonFiniteInput},
		{"inf charge", src, []float64{1, math.Inf(1)}, tgt, opts(4, 2), fmm.ErrNonFiniteInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := fmm.Build(tt.sources, tt.charges, tt.targets, tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, tree)
		})
	}
}

func TestBuild_AssignsPointsToLeaves(t *testing.T) {
	sources := []complex128{0.1 + 0.1i, 0.6 + 0.1i, 0.1 + 0.6i, 0.6 + 0.6i, 1 + 1i}
	targets := []complex128{0.9 + 0.2i}
	tree, err := fmm.Build(sources, pointgen.UnitCharges(len(sources)), targets, opts(6, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, 6, tree.Order())
	assert.Equal(t, len(sources), tree.NumSources())
	assert.Equal(t, len(targets), tree.NumTargets())

	// address = gx<<1 | gy at level 1
	want := map[uint32][]int{0: {0}, 2: {1}, 1: {2}, 3: {3, 4}}
	for a, idx := range want {
		c := tree.Cell(1, a)
		require.NotNil(t, c)
		require.Len(t, c.Sources, len(idx), "cell %d", a)
		for k, i := range idx {
			assert.Equal(t, i, c.Sources[k].Index)
			assert.Equal(t, sources[i], c.Sources[k].Pos)
		}
	}
	require.Len(t, tree.Cell(1, 2).Targets, 1)
	assert.Equal(t, 0, tree.Cell(1, 2).Targets[0].Index)

	root := tree.Cell(0, 0)
	require.NotNil(t, root)
	assert.Equal(t, 5, root.SourceCount())
	assert.Equal(t, 1, root.TargetCount())
	assert.Empty(t, root.Sources)
}

func TestBuild_AllocatesEveryLevel(t *testing.T) {
	tree, err := fmm.Build(nil, nil, nil, opts(5, 3))
	require.NoError(t, err)
	for level := 0; level <= 3; level++ {
		cells := tree.Level(level)
		require.Len(t, cells, spatial.CellCount(level))
		for a := range cells {
			c := &cells[a]
			assert.Equal(t, level, c.Level)
			assert.Equal(t, uint32(a), c.Address)
			assert.Len(t, c.C, 5)
			assert.Len(t, c.Dtilde, 5)
			assert.Len(t, c.D, 5)
		}
	}
	assert.Nil(t, tree.Level(4))
	assert.Nil(t, tree.Cell(4, 0))
	assert.Nil(t, tree.Cell(2, 16))
}

func TestCell_Geometry(t *testing.T) {
	tree, err := fmm.Build(nil, nil, nil, opts(3, 2))
	require.NoError(t, err)
	c := tree.Cell(2, spatial.MustInterleave(3, 1, 2))
	assert.Equal(t, 0.875+0.375i, c.Center())
	assert.Equal(t, 0.125, c.HalfSize())
}

func TestTree_ClusterThresholdAndOccupancy(t *testing.T) {
	pts, err := pointgen.Lattice(2)
	require.NoError(t, err)

	tree, err := fmm.Build(pts, pointgen.UnitCharges(len(pts)), pts[:3], opts(4, 2))
	require.NoError(t, err)
	assert.Equal(t, 4, tree.ClusterThreshold())

	o := tree.Occupancy()
	assert.Equal(t, 16, o.Leaves)
	assert.Equal(t, 16, o.NonEmptyLeaves)
	assert.Equal(t, 4, o.MaxSources)
	assert.Equal(t, 3, o.MaxTargets)
	assert.InDelta(t, 4.0, o.MeanSources, 1e-15)
	assert.InDelta(t, 3.0/16, o.MeanTargets, 1e-15)

	deeper, err := fmm.Build(pts, pointgen.UnitCharges(len(pts)), nil, opts(4, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, deeper.ClusterThreshold())
}
