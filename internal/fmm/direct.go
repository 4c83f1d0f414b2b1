package fmm

import (
	"fmt"
	"math"

	"github.com/kbrauss/FMM2D/internal/expansion"
)

// DirectResult is the output of the O(N·M) reference sum.
type DirectResult struct {
	Potentials      []float64
	Pairs           int64
	CoincidentPairs int64
}

// Direct sums u·Re log(y-x) over every source for every target, skipping
// coincident pairs with the same rule as Evaluate. Points are not required to
// lie in the unit square.
func Direct(sources []complex128, charges []float64, targets []complex128) (DirectResult, error) {
	if len(charges) != len(sources) {
		return DirectResult{}, fmt.Errorf("%w: %d sources, %d charges", ErrChargeMismatch, len(sources), len(charges))
	}
	for i, q := range charges {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return DirectResult{}, fmt.Errorf("%w: charge %d", ErrNonFiniteInput, i)
		}
	}
	res := DirectResult{Potentials: make([]float64, len(targets))}
	for j, y := range targets {
		var sum float64
		for i, x := range sources {
			if Coincident(y, x) {
				res.CoincidentPairs++
				continue
			}
			sum += charges[i] * real(expansion.DirectPotential(y, x))
			res.Pairs++
		}
		res.Potentials[j] = sum
	}
	return res, nil
}

// MaxAbsError returns max_i |got[i]-want[i]| and the index where it occurs.
// It returns -1 for empty or mismatched inputs.
func MaxAbsError(got, want []float64) (float64, int) {
	if len(got) != len(want) || len(got) == 0 {
		return 0, -1
	}
	worst, at := 0.0, 0
	for i := range got {
		if d := math.Abs(got[i] - want[i]); d > worst {
			worst, at = d, i
		}
	}
	return worst, at
}
