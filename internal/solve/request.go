package solve

import (
	"fmt"
	"math"
	"strings"

	"github.com/kbrauss/FMM2D/internal/fmm"
)

// Point is an (x, y) pair in the unit square.
type Point [2]float64

func (p Point) complex() complex128 { return complex(p[0], p[1]) }

// Request is one potential evaluation. Zero values for Order, Level and
// ClusterThreshold select the service defaults; Level 0 means the depth is
// chosen by cluster threshold.
type Request struct {
	Sources          []Point   `json:"sources"`
	Charges          []float64 `json:"charges"`
	Targets          []Point   `json:"targets"`
	Order            int       `json:"order,omitempty"`
	Level            int       `json:"level,omitempty"`
	ClusterThreshold int       `json:"cluster_threshold,omitempty"`
	Compare          bool      `json:"compare,omitempty"`
}

// Occupancy summarizes how points landed in the leaves.
type Occupancy struct {
	Leaves         int     `json:"leaves"`
	NonEmptyLeaves int     `json:"non_empty_leaves"`
	MaxSources     int     `json:"max_sources"`
	MaxTargets     int     `json:"max_targets"`
	MeanSources    float64 `json:"mean_sources"`
	MeanTargets    float64 `json:"mean_targets"`
}

// Counters mirrors fmm.Stats with JSON names and per-phase timings.
type Counters struct {
	FarCoefficients  int64              `json:"far_coefficients"`
	FarToFar         int64              `json:"far_to_far"`
	FarToNear        int64              `json:"far_to_near"`
	NearToNear       int64              `json:"near_to_near"`
	LocalEvaluations int64              `json:"local_evaluations"`
	DirectPairs      int64              `json:"direct_pairs"`
	CoincidentPairs  int64              `json:"coincident_pairs"`
	Operations       int64              `json:"operations"`
	PhaseMillis      map[string]float64 `json:"-"`
}

// Result is the outcome of a solve.
type Result struct {
	Method           string     `json:"method"`
	Potentials       []float64  `json:"potentials"`
	Order            int        `json:"order,omitempty"`
	Level            int        `json:"level,omitempty"`
	ClusterThreshold int        `json:"cluster_threshold,omitempty"`
	Occupancy        *Occupancy `json:"occupancy,omitempty"`
	Stats            Counters   `json:"stats"`
	MaxError         *float64   `json:"max_error,omitempty"`
	MaxErrorIndex    *int       `json:"max_error_index,omitempty"`
	// Timings and the cache flag vary between identical requests, so they
	// stay out of the body and travel as response headers.
	DurationMillis float64 `json:"-"`
	Cached         bool    `json:"-"`
}

func toComplex(points []Point) []complex128 {
	out := make([]complex128, len(points))
	for i, p := range points {
		out[i] = p.complex()
	}
	return out
}

func counters(s fmm.Stats, p int) Counters {
	c := Counters{
		FarCoefficients:  s.FarCoefficients,
		FarToFar:         s.FarToFar,
		FarToNear:        s.FarToNear,
		NearToNear:       s.NearToNear,
		LocalEvaluations: s.LocalEvaluations,
		DirectPairs:      s.DirectPairs,
		CoincidentPairs:  s.CoincidentPairs,
		Operations:       s.Operations(p),
		PhaseMillis:      make(map[string]float64, len(s.Durations)),
	}
	for ph := fmm.PhaseSeeded; ph <= fmm.PhaseEvaluated; ph++ {
		c.PhaseMillis[ph.String()] = float64(s.Durations[ph].Microseconds()) / 1000
	}
	return c
}

// PhaseSummary formats the per-phase timings in phase order, e.g.
// "seed=0.012, upward=0.340". Empty when no timings were recorded.
func (c Counters) PhaseSummary() string {
	var b strings.Builder
	for ph := fmm.PhaseSeeded; ph <= fmm.PhaseEvaluated; ph++ {
		ms, ok := c.PhaseMillis[ph.String()]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%.3f", ph, ms)
	}
	return b.String()
}

// normalize fills defaults and checks request-level limits. Geometric
// preconditions are left to the fmm package.
func (s *Service) normalize(req Request) (Request, error) {
	if len(req.Sources) == 0 && len(req.Targets) == 0 {
		return req, fmt.Errorf("%w: no sources or targets", ErrInvalidRequest)
	}
	if n := len(req.Sources) + len(req.Targets); n > s.cfg.MaxPoints {
		return req, fmt.Errorf("%w: %d points, limit %d", ErrTooLarge, n, s.cfg.MaxPoints)
	}
	if req.Charges == nil && len(req.Sources) > 0 {
		req.Charges = make([]float64, len(req.Sources))
		for i := range req.Charges {
			req.Charges[i] = 1
		}
	}
	if req.Order == 0 {
		req.Order = s.cfg.Order
	}
	if req.Order < 0 || req.Order > MaxOrder {
		return req, fmt.Errorf("%w: order %d not in [1,%d]", ErrInvalidRequest, req.Order, MaxOrder)
	}
	if req.Level != 0 && (req.Level < fmm.MinLevel || req.Level > fmm.MaxLevel) {
		return req, fmt.Errorf("%w: level %d not in [%d,%d]", ErrInvalidRequest, req.Level, fmm.MinLevel, fmm.MaxLevel)
	}
	if req.ClusterThreshold == 0 {
		req.ClusterThreshold = s.cfg.ClusterThreshold
	}
	if req.ClusterThreshold < 0 {
		return req, fmt.Errorf("%w: cluster threshold %d", ErrInvalidRequest, req.ClusterThreshold)
	}
	if req.Compare {
		if pairs := int64(len(req.Sources)) * int64(len(req.Targets)); pairs > s.cfg.CompareMaxPairs {
			return req, fmt.Errorf("%w: comparison needs %d pairs, limit %d", ErrTooLarge, pairs, s.cfg.CompareMaxPairs)
		}
	}
	for _, c := range req.Charges {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return req, fmt.Errorf("%w: %v", fmm.ErrNonFiniteInput, c)
		}
	}
	return req, nil
}

// Points converts complex coordinates to request points.
func Points(zs []complex128) []Point {
	out := make([]Point, len(zs))
	for i, z := range zs {
		out[i] = Point{real(z), imag(z)}
	}
	return out
}
