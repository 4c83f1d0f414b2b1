// Package fmm solves the 2-D logarithmic N-body potential problem in the unit
// square with the Fast Multipole Method.
//
// A Tree is a flat arena of refinement levels 0..L, each holding 4^level cells
// addressed by their Morton address (see package spatial). Sources and targets
// live only in the leaf level L. A Solver runs the five phases over a Tree:
// seed leaves, upward pass, downward pass 1 (interaction lists), downward pass
// 2 (parent to child) and evaluation.
package fmm

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/kbrauss/FMM2D/internal/spatial"
)

// Source is a charged point stored in a leaf cell.
type Source struct {
	Index  int
	Pos    complex128
	Charge float64
}

// Target is an evaluation point stored in a leaf cell.
type Target struct {
	Index int
	Pos   complex128
}

// Cell is one square of the quadtree. Center and size are derived from
// (Level, Address) on demand.
type Cell struct {
	Level   int
	Address uint32

	Sources []Source
	Targets []Target

	// C holds far-field (multipole) coefficients.
	C []complex128
	// Dtilde holds local coefficients from the interaction list only.
	Dtilde []complex128
	// D holds the merged local coefficients.
	D []complex128

	// subtree occupancy, used to skip work that would add zeros
	sourceCount int
	targetCount int
}

// Center returns the cell center.
func (c *Cell) Center() complex128 { return spatial.Center(c.Level, c.Address) }

// HalfSize returns half the side length of the cell.
func (c *Cell) HalfSize() float64 { return spatial.HalfSize(c.Level) }

// SourceCount is the number of sources in the cell's subtree.
func (c *Cell) SourceCount() int { return c.sourceCount }

// TargetCount is the number of targets in the cell's subtree.
func (c *Cell) TargetCount() int { return c.targetCount }

// Tree is the full level pyramid built once per solve.
type Tree struct {
	order    int
	depth    int
	levels   [][]Cell
	nSources int
	nTargets int
	log      *slog.Logger
}

// Build allocates every level 0..opts.Level with zeroed coefficients and
// assigns each source and target to its leaf.
func Build(sources []complex128, charges []float64, targets []complex128, opts Options) (*Tree, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(charges) != len(sources) {
		return nil, fmt.Errorf("%w: %d sources, %d charges", ErrChargeMismatch, len(sources), len(charges))
	}
	for i, q := range charges {
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return nil, fmt.Errorf("%w: charge %d", ErrNonFiniteInput, i)
		}
	}

	t := &Tree{
		order:    opts.Order,
		depth:    opts.Level,
		levels:   make([][]Cell, opts.Level+1),
		nSources: len(sources),
		nTargets: len(targets),
		log:      opts.logger(),
	}
	for level := range t.levels {
		t.levels[level] = newLevel(level, opts.Order)
	}

	leaves := t.levels[t.depth]
	for i, z := range sources {
		a, err := leafAddress(z, t.depth, "source", i)
		if err != nil {
			return nil, err
		}
		leaves[a].Sources = append(leaves[a].Sources, Source{Index: i, Pos: z, Charge: charges[i]})
	}
	for i, z := range targets {
		a, err := leafAddress(z, t.depth, "target", i)
		if err != nil {
			return nil, err
		}
		leaves[a].Targets = append(leaves[a].Targets, Target{Index: i, Pos: z})
	}
	t.countOccupancy()

	t.log.Debug("tree built",
		"level", t.depth,
		"order", t.order,
		"sources", t.nSources,
		"targets", t.nTargets,
		"cluster_threshold", t.ClusterThreshold())
	return t, nil
}

// newLevel allocates 4^level cells whose coefficient slices share one backing array.
func newLevel(level, p int) []Cell {
	n := spatial.CellCount(level)
	cells := make([]Cell, n)
	backing := make([]complex128, 3*n*p)
	for a := range cells {
		off := 3 * a * p
		cells[a] = Cell{
			Level:   level,
			Address: uint32(a),
			C:       backing[off : off+p : off+p],
			Dtilde:  backing[off+p : off+2*p : off+2*p],
			D:       backing[off+2*p : off+3*p : off+3*p],
		}
	}
	return cells
}

func leafAddress(z complex128, level int, role string, i int) (uint32, error) {
	x, y := real(z), imag(z)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: %s %d", ErrNonFiniteInput, role, i)
	}
	a, err := spatial.LeafAddress(z, level)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %d at (%g,%g)", ErrPointOutOfDomain, role, i, x, y)
	}
	return a, nil
}

// countOccupancy fills subtree source/target counts from the leaves up.
func (t *Tree) countOccupancy() {
	for a := range t.levels[t.depth] {
		c := &t.levels[t.depth][a]
		c.sourceCount = len(c.Sources)
		c.targetCount = len(c.Targets)
	}
	for level := t.depth - 1; level >= 0; level-- {
		for a := range t.levels[level] {
			c := &t.levels[level][a]
			for _, ch := range spatial.Children(uint32(a)) {
				child := &t.levels[level+1][ch]
				c.sourceCount += child.sourceCount
				c.targetCount += child.targetCount
			}
		}
	}
}

// Order returns the truncation order p.
func (t *Tree) Order() int { return t.order }

// Depth returns the leaf level L.
func (t *Tree) Depth() int { return t.depth }

// NumSources returns the number of source points.
func (t *Tree) NumSources() int { return t.nSources }

// NumTargets returns the number of target points.
func (t *Tree) NumTargets() int { return t.nTargets }

// Cell returns the cell at (level, address), or nil when out of range.
func (t *Tree) Cell(level int, address uint32) *Cell {
	if level < 0 || level > t.depth || int(address) >= len(t.levels[level]) {
		return nil
	}
	return &t.levels[level][address]
}

// Level returns all cells of a level indexed by address.
func (t *Tree) Level(level int) []Cell {
	if level < 0 || level > t.depth {
		return nil
	}
	return t.levels[level]
}

// Leaves returns the cells of level L.
func (t *Tree) Leaves() []Cell { return t.levels[t.depth] }

// ClusterThreshold returns the largest number of sources or targets held by a
// single leaf.
func (t *Tree) ClusterThreshold() int {
	most := 0
	for i := range t.levels[t.depth] {
		c := &t.levels[t.depth][i]
		most = max(most, len(c.Sources), len(c.Targets))
	}
	return most
}

// Occupancy summarizes how points are spread over the leaves.
type Occupancy struct {
	Leaves         int
	NonEmptyLeaves int
	MaxSources     int
	MaxTargets     int
	MeanSources    float64
	MeanTargets    float64
}

// Occupancy reports leaf occupancy statistics.
func (t *Tree) Occupancy() Occupancy {
	leaves := t.levels[t.depth]
	o := Occupancy{Leaves: len(leaves)}
	for i := range leaves {
		ns, nt := len(leaves[i].Sources), len(leaves[i].Targets)
		if ns > 0 || nt > 0 {
			o.NonEmptyLeaves++
		}
		if ns > o.MaxSources {
			o.MaxSources = ns
		}
		if nt > o.MaxTargets {
			o.MaxTargets = nt
		}
	}
	o.MeanSources = float64(t.nSources) / float64(len(leaves))
	o.MeanTargets = float64(t.nTargets) / float64(len(leaves))
	return o
}
