package fmm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbrauss/FMM2D/internal/expansion"
	"github.com/kbrauss/FMM2D/internal/spatial"
	"github.com/kbrauss/FMM2D/internal/tracing"
)

// Solver runs the five FMM phases over one Tree. Phases must be called in
// order, once each: SeedLeaves, UpwardPass, DownwardPass1, DownwardPass2,
// Evaluate. Every gather is pull-style: a cell only writes its own
// coefficients, reading finalized coefficients of its children, parent or
// interaction list.
type Solver struct {
	tree   *Tree
	kernel *expansion.Kernel
	phase  Phase
	stats  Stats
	log    *slog.Logger
}

// NewSolver prepares a solver for a freshly built tree.
func NewSolver(tree *Tree) (*Solver, error) {
	if tree == nil {
		return nil, ErrInvalidTreeArg
	}
	k, err := expansion.New(tree.order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return &Solver{tree: tree, kernel: k, phase: PhaseBuilt, log: tree.log}, nil
}

// Tree returns the solver's tree.
func (s *Solver) Tree() *Tree { return s.tree }

// Phase returns the last completed phase.
func (s *Solver) Phase() Phase { return s.phase }

// Stats returns the counters accumulated so far.
func (s *Solver) Stats() Stats { return s.stats }

func (s *Solver) enter(next Phase) error {
	if s.phase == PhaseEvaluated {
		return ErrAlreadySolved
	}
	if s.phase != next-1 {
		return fmt.Errorf("%w: %s after %s", ErrPhaseOrder, next, s.phase)
	}
	return nil
}

func (s *Solver) leave(p Phase, start time.Time) {
	s.phase = p
	s.stats.Durations[p] = time.Since(start)
	s.log.Debug("phase complete", "phase", p.String(), "elapsed", s.stats.Durations[p])
}

// SeedLeaves forms the far-field expansion of every leaf from its sources.
func (s *Solver) SeedLeaves() error {
	if err := s.enter(PhaseSeeded); err != nil {
		return err
	}
	start := time.Now()
	leaves := s.tree.Leaves()
	for i := range leaves {
		c := &leaves[i]
		if len(c.Sources) == 0 {
			continue
		}
		center := c.Center()
		for _, src := range c.Sources {
			s.kernel.AddFarCoefficients(c.C, src.Pos, center, src.Charge)
			s.stats.FarCoefficients++
		}
	}
	s.leave(PhaseSeeded, start)
	return nil
}

// UpwardPass translates far-field expansions from children to parents, from
// level L-1 up to level 2. Each parent gathers its four children.
func (s *Solver) UpwardPass() error {
	if err := s.enter(PhaseUpward); err != nil {
		return err
	}
	start := time.Now()
	for level := s.tree.depth - 1; level >= spatial.MinInteractionLevel; level-- {
		parents := s.tree.levels[level]
		children := s.tree.levels[level+1]
		for a := range parents {
			parent := &parents[a]
			if parent.sourceCount == 0 {
				continue
			}
			to := parent.Center()
			for _, ca := range spatial.Children(uint32(a)) {
				child := &children[ca]
				if child.sourceCount == 0 {
					continue
				}
				if err := s.kernel.AddFarToFar(parent.C, child.Center(), to, child.C); err != nil {
					return fmt.Errorf("upward pass level %d cell %d: %w", level, a, err)
				}
				s.stats.FarToFar++
			}
		}
	}
	s.leave(PhaseUpward, start)
	return nil
}

// DownwardPass1 converts the far-field expansions of every cell's interaction
// list into its unmerged local expansion Dtilde, for levels 2..L.
func (s *Solver) DownwardPass1() error {
	if err := s.enter(PhaseDownward1); err != nil {
		return err
	}
	start := time.Now()
	for level := spatial.MinInteractionLevel; level <= s.tree.depth; level++ {
		cells := s.tree.levels[level]
		for a := range cells {
			c := &cells[a]
			if c.targetCount == 0 {
				continue
			}
			to := c.Center()
			for _, ma := range spatial.InteractionList(level, uint32(a)) {
				m := &cells[ma]
				if m.sourceCount == 0 {
					continue
				}
				if err := s.kernel.AddFarToNear(c.Dtilde, m.Center(), to, m.C); err != nil {
					// a zero translation here means the interaction list contains the cell itself
					return fmt.Errorf("downward pass 1 level %d cell %d from %d: %w", level, a, ma, err)
				}
				s.stats.FarToNear++
			}
		}
	}
	s.leave(PhaseDownward1, start)
	return nil
}

// DownwardPass2 merges local expansions top-down. Level 2 takes D = Dtilde;
// every deeper cell gathers its parent's D re-centered to its own center and
// adds its own Dtilde.
func (s *Solver) DownwardPass2() error {
	if err := s.enter(PhaseDownward2); err != nil {
		return err
	}
	start := time.Now()
	if s.tree.depth >= spatial.MinInteractionLevel {
		for a := range s.tree.levels[spatial.MinInteractionLevel] {
			c := &s.tree.levels[spatial.MinInteractionLevel][a]
			copy(c.D, c.Dtilde)
		}
	}
	for level := spatial.MinInteractionLevel + 1; level <= s.tree.depth; level++ {
		parents := s.tree.levels[level-1]
		cells := s.tree.levels[level]
		for a := range cells {
			c := &cells[a]
			if c.targetCount == 0 {
				continue
			}
			parent := &parents[spatial.Parent(uint32(a))]
			if err := s.kernel.AddNearToNear(c.D, parent.Center(), c.Center(), parent.D); err != nil {
				return fmt.Errorf("downward pass 2 level %d cell %d: %w", level, a, err)
			}
			s.stats.NearToNear++
			for k := range c.D {
				c.D[k] += c.Dtilde[k]
			}
		}
	}
	s.leave(PhaseDownward2, start)
	return nil
}

// Evaluate returns the potential at every target, index-aligned with the
// targets passed to Build: the real part of the leaf's local expansion plus
// the direct sum over sources in the leaf and its neighbors. Coincident
// source/target pairs are skipped.
func (s *Solver) Evaluate() ([]float64, error) {
	if err := s.enter(PhaseEvaluated); err != nil {
		return nil, err
	}
	start := time.Now()
	depth := s.tree.depth
	leaves := s.tree.levels[depth]
	out := make([]float64, s.tree.nTargets)
	near := make([]uint32, 0, 9)
	for a := range leaves {
		c := &leaves[a]
		if len(c.Targets) == 0 {
			continue
		}
		center := c.Center()
		near = append(near[:0], spatial.Neighbors(depth, uint32(a))...)
		near = append(near, uint32(a))
		for _, tg := range c.Targets {
			far := s.kernel.EvaluateNear(c.D, tg.Pos, center)
			s.stats.LocalEvaluations++
			var direct float64
			for _, na := range near {
				for _, src := range leaves[na].Sources {
					if Coincident(tg.Pos, src.Pos) {
						s.stats.CoincidentPairs++
						continue
					}
					direct += src.Charge * real(expansion.DirectPotential(tg.Pos, src.Pos))
					s.stats.DirectPairs++
				}
			}
			out[tg.Index] = far + direct
		}
	}
	s.leave(PhaseEvaluated, start)
	return out, nil
}

// Solve runs all five phases and returns the target potentials.
func (s *Solver) Solve(ctx context.Context) ([]float64, error) {
	ctx, span := tracing.StartSpan(ctx, "fmm.Solve", trace.WithAttributes(
		attribute.Int("fmm.level", s.tree.depth),
		attribute.Int("fmm.order", s.tree.order),
		attribute.Int("fmm.sources", s.tree.nSources),
		attribute.Int("fmm.targets", s.tree.nTargets),
	))
	defer span.End()

	steps := []struct {
		phase Phase
		run   func() error
	}{
		{PhaseSeeded, s.SeedLeaves},
		{PhaseUpward, s.UpwardPass},
		{PhaseDownward1, s.DownwardPass1},
		{PhaseDownward2, s.DownwardPass2},
	}
	for _, step := range steps {
		if err := s.traced(ctx, step.phase, step.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	var out []float64
	err := s.traced(ctx, PhaseEvaluated, func() error {
		var err error
		out, err = s.Evaluate()
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("fmm.far_to_near", s.stats.FarToNear),
		attribute.Int64("fmm.direct_pairs", s.stats.DirectPairs),
	)
	return out, nil
}

func (s *Solver) traced(ctx context.Context, p Phase, run func() error) error {
	_, span := tracing.StartSpan(ctx, "fmm.phase."+p.String())
	defer span.End()
	if err := run(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Coincident reports whether y and x are the same point within
// machine epsilon scaled by max(1, |x|, |y|).
func Coincident(y, x complex128) bool {
	scale := math.Max(1, math.Max(cmplx.Abs(x), cmplx.Abs(y)))
	return cmplx.Abs(y-x) <= epsilon*scale
}

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

// Solve builds a tree and runs a complete solve in one call.
func Solve(ctx context.Context, sources []complex128, charges []float64, targets []complex128, opts Options) ([]float64, Stats, error) {
	tree, err := Build(sources, charges, targets, opts)
	if err != nil {
		return nil, Stats{}, err
	}
	solver, err := NewSolver(tree)
	if err != nil {
		return nil, Stats{}, err
	}
	out, err := solver.Solve(ctx)
	if err != nil {
		return nil, solver.Stats(), err
	}
	return out, solver.Stats(), nil
}
