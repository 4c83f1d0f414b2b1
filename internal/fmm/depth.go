package fmm

import (
	"fmt"

	"github.com/kbrauss/FMM2D/internal/spatial"
)

// SelectDepth returns the shallowest level in [minLevel, maxLevel] at which no
// leaf holds more than threshold sources or targets, or maxLevel if none
// qualifies. Only leaf counts are computed; no coefficients are allocated.
func SelectDepth(sources, targets []complex128, minLevel, maxLevel, threshold int) (int, error) {
	if minLevel < MinLevel || maxLevel > MaxLevel || minLevel > maxLevel || threshold < 1 {
		return 0, fmt.Errorf("%w: levels [%d,%d], threshold %d", ErrInvalidRange, minLevel, maxLevel, threshold)
	}
	for level := minLevel; level <= maxLevel; level++ {
		ct, err := clusterThreshold(sources, targets, level)
		if err != nil {
			return 0, err
		}
		if ct <= threshold {
			return level, nil
		}
	}
	return maxLevel, nil
}

// clusterThreshold is Tree.ClusterThreshold without building the tree.
func clusterThreshold(sources, targets []complex128, level int) (int, error) {
	n := spatial.CellCount(level)
	counts := make([]int, n)
	most := 0
	for role, pts := range [2][]complex128{sources, targets} {
		clear(counts)
		name := "source"
		if role == 1 {
			name = "target"
		}
		for i, z := range pts {
			a, err := leafAddress(z, level, name, i)
			if err != nil {
				return 0, err
			}
			counts[a]++
			if counts[a] > most {
				most = counts[a]
			}
		}
	}
	return most, nil
}
