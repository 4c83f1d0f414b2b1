// Package pointgen generates source and target sets in the unit square.
package pointgen

import (
	"fmt"
	"math/rand"

	"github.com/kbrauss/FMM2D/internal/spatial"
)

// Uniform returns n points drawn uniformly from [0,1)².
func Uniform(rng *rand.Rand, n int) []complex128 {
	pts := make([]complex128, n)
	for i := range pts {
		pts[i] = complex(rng.Float64(), rng.Float64())
	}
	return pts
}

// Charges returns n charges drawn uniformly from [-1,1).
func Charges(rng *rand.Rand, n int) []float64 {
	q := make([]float64, n)
	for i := range q {
		q[i] = 2*rng.Float64() - 1
	}
	return q
}

// UnitCharges returns n charges equal to 1.
func UnitCharges(n int) []float64 {
	q := make([]float64, n)
	for i := range q {
		q[i] = 1
	}
	return q
}

// Lattice places four points in every cell of the given level, at the
// quarter and three-quarter offsets along each axis. Points are emitted in
// address order and every coordinate is a dyadic rational.
func Lattice(level int) ([]complex128, error) {
	if level < 1 || level > spatial.MaxLevel {
		return nil, fmt.Errorf("lattice: %w: %d", spatial.ErrLevelOutOfRange, level)
	}
	n := spatial.CellCount(level)
	side := float64(spatial.CellsPerSide(level))
	pts := make([]complex128, 0, 4*n)
	for a := 0; a < n; a++ {
		gx, gy, err := spatial.Uninterleave(uint32(a), level)
		if err != nil {
			return nil, err
		}
		for _, dx := range [2]float64{0.25, 0.75} {
			for _, dy := range [2]float64{0.25, 0.75} {
				pts = append(pts, complex((float64(gx)+dx)/side, (float64(gy)+dy)/side))
			}
		}
	}
	return pts, nil
}

// Grid returns an n×n grid of cell-centered points, useful as a target set
// for potential maps.
func Grid(n int) []complex128 {
	pts := make([]complex128, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pts = append(pts, complex((float64(i)+0.5)/float64(n), (float64(j)+0.5)/float64(n)))
		}
	}
	return pts
}
