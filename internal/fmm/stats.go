package fmm

import "time"

// Phase identifies a step of the solve.
type Phase int

const (
	PhaseBuilt Phase = iota
	PhaseSeeded
	PhaseUpward
	PhaseDownward1
	PhaseDownward2
	PhaseEvaluated
)

var phaseNames = [...]string{
	PhaseBuilt:     "built",
	PhaseSeeded:    "seed",
	PhaseUpward:    "upward",
	PhaseDownward1: "downward1",
	PhaseDownward2: "downward2",
	PhaseEvaluated: "evaluate",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Stats counts the work done by a solve.
type Stats struct {
	// FarCoefficients counts per-source S expansions formed in the seed phase.
	FarCoefficients int64
	// FarToFar, FarToNear and NearToNear count translation operator applications.
	FarToFar   int64
	FarToNear  int64
	NearToNear int64
	// LocalEvaluations counts local-expansion evaluations at targets.
	LocalEvaluations int64
	// DirectPairs counts near-field kernel evaluations.
	DirectPairs int64
	// CoincidentPairs counts source/target pairs skipped as coincident.
	CoincidentPairs int64

	// Durations holds the wall time of each completed phase, indexed by Phase.
	Durations [PhaseEvaluated + 1]time.Duration
}

// Operations estimates the arithmetic cost of the solve: O(p) per expansion
// or evaluation, O(p²) per translation, one per direct pair.
func (s Stats) Operations(p int) int64 {
	pp := int64(p)
	return s.FarCoefficients*pp +
		(s.FarToFar+s.FarToNear+s.NearToNear)*pp*pp +
		s.LocalEvaluations*pp +
		s.DirectPairs
}

// Total returns the summed wall time of all phases.
func (s Stats) Total() time.Duration {
	var d time.Duration
	for _, v := range s.Durations {
		d += v
	}
	return d
}
