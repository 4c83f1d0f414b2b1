// Package solve wraps the fmm package as a request/response service with
// limits, caching, metrics, tracing and error reporting.
package solve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbrauss/FMM2D/internal/cache"
	"github.com/kbrauss/FMM2D/internal/circuitbreaker"
	"github.com/kbrauss/FMM2D/internal/config"
	"github.com/kbrauss/FMM2D/internal/errorreporting"
	"github.com/kbrauss/FMM2D/internal/fmm"
	"github.com/kbrauss/FMM2D/internal/logger"
	"github.com/kbrauss/FMM2D/internal/metrics"
	"github.com/kbrauss/FMM2D/internal/tracing"
)

// MaxOrder bounds the truncation order accepted from callers. Beyond this
// the translation coefficients overflow long before accuracy improves.
const MaxOrder = 64

const (
	MethodFMM    = "fmm"
	MethodDirect = "direct"
)

// Config holds the service limits and defaults.
type Config struct {
	Order            int
	MinLevel         int
	MaxLevel         int
	ClusterThreshold int
	MaxPoints        int
	CompareMaxPairs  int64
	Timeout          time.Duration
	CacheTTL         time.Duration
	// BreakerFailures consecutive timeouts or internal failures shed new
	// solves for BreakerCooldown. Zero disables shedding.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ConfigFrom extracts the solver settings from the application config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Order:            c.Order,
		MinLevel:         c.MinLevel,
		MaxLevel:         c.MaxLevel,
		ClusterThreshold: c.ClusterThreshold,
		MaxPoints:        c.MaxPoints,
		CompareMaxPairs:  c.CompareMaxPairs,
		Timeout:          c.SolveTimeout,
		CacheTTL:         c.CacheTTL,
		BreakerFailures:  c.BreakerFailures,
		BreakerCooldown:  c.BreakerCooldown,
	}
}

// Service runs solves. It is safe for concurrent use; every call builds its
// own tree.
type Service struct {
	cfg     Config
	cache   cache.Cache
	breaker *circuitbreaker.CircuitBreaker
	log     *slog.Logger
}

// NewService creates a service. A nil cache disables response caching.
func NewService(cfg Config, c cache.Cache) *Service {
	s := &Service{cfg: cfg, cache: c, log: logger.WithComponent("solve")}
	if cfg.BreakerFailures > 0 {
		s.breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "solve",
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerCooldown,
			IsFailure:        countsAgainstBreaker,
		})
	}
	return s
}

// Run evaluates the potentials with the FMM. When req.Compare is set the
// direct sum is also computed and the max absolute difference reported.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, MethodFMM, req, s.solveFMM)
}

// RunDirect evaluates the potentials by direct summation.
func (s *Service) RunDirect(ctx context.Context, req Request) (*Result, error) {
	req.Compare = false
	return s.run(ctx, MethodDirect, req, s.solveDirect)
}

type solveFunc func(ctx context.Context, req Request, sources, targets []complex128) (*Result, error)

func (s *Service) run(ctx context.Context, method string, req Request, solve solveFunc) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "solve."+method, trace.WithAttributes(
		attribute.Int("solve.sources", len(req.Sources)),
		attribute.Int("solve.targets", len(req.Targets)),
	))
	defer span.End()
	log := s.log.With("method", method, "request_id", requestID(ctx))

	req, err := s.normalize(req)
	if err != nil {
		return nil, s.fail(ctx, span, method, req, err)
	}

	key := s.cacheKey(method, req)
	if res, ok := s.lookup(method, key); ok {
		span.SetAttributes(attribute.Bool("solve.cached", true))
		log.Debug("served from cache", "key", key)
		res.DurationMillis = float64(time.Since(start).Microseconds()) / 1000
		return res, nil
	}

	metrics.PointsTotal.WithLabelValues("source").Add(float64(len(req.Sources)))
	metrics.PointsTotal.WithLabelValues("target").Add(float64(len(req.Targets)))

	var res *Result
	err = s.guard(func() error {
		var err error
		res, err = s.withTimeout(ctx, func(ctx context.Context) (*Result, error) {
			return solve(ctx, req, toComplex(req.Sources), toComplex(req.Targets))
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, span, method, req, err)
	}

	elapsed := time.Since(start)
	res.DurationMillis = float64(elapsed.Microseconds()) / 1000
	metrics.SolvesTotal.WithLabelValues(method, "success").Inc()
	metrics.SolveDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("solve.level", res.Level), attribute.Int("solve.order", res.Order))
	log.Info("solve complete",
		"sources", len(req.Sources),
		"targets", len(req.Targets),
		"order", res.Order,
		"level", res.Level,
		"duration_ms", res.DurationMillis,
	)

	s.store(key, res)
	return res, nil
}

func (s *Service) solveFMM(ctx context.Context, req Request, sources, targets []complex128) (*Result, error) {
	level := req.Level
	if level == 0 {
		var err error
		level, err = fmm.SelectDepth(sources, targets, s.cfg.MinLevel, s.cfg.MaxLevel, req.ClusterThreshold)
		if err != nil {
			return nil, err
		}
	}

	tree, err := fmm.Build(sources, req.Charges, targets, fmm.Options{Order: req.Order, Level: level, Logger: s.log})
	if err != nil {
		return nil, err
	}
	solver, err := fmm.NewSolver(tree)
	if err != nil {
		return nil, err
	}
	pot, err := solver.Solve(ctx)
	if err != nil {
		return nil, err
	}

	st := solver.Stats()
	recordStats(st)
	s.log.Debug("fmm phases complete", "level", level, "order", req.Order, "phases", st.Total())
	metrics.SolveLevel.Observe(float64(level))

	o := tree.Occupancy()
	res := &Result{
		Method:           MethodFMM,
		Potentials:       pot,
		Order:            req.Order,
		Level:            level,
		ClusterThreshold: tree.ClusterThreshold(),
		Occupancy: &Occupancy{
			Leaves:         o.Leaves,
			NonEmptyLeaves: o.NonEmptyLeaves,
			MaxSources:     o.MaxSources,
			MaxTargets:     o.MaxTargets,
			MeanSources:    o.MeanSources,
			MeanTargets:    o.MeanTargets,
		},
		Stats: counters(st, req.Order),
	}

	if req.Compare {
		_, cspan := tracing.StartSpan(ctx, "solve.compare")
		d, err := fmm.Direct(sources, req.Charges, targets)
		cspan.End()
		if err != nil {
			return nil, err
		}
		if maxErr, idx := fmm.MaxAbsError(pot, d.Potentials); idx >= 0 {
			res.MaxError, res.MaxErrorIndex = &maxErr, &idx
			metrics.MaxError.Set(maxErr)
		}
	}
	return res, nil
}

func (s *Service) solveDirect(_ context.Context, req Request, sources, targets []complex128) (*Result, error) {
	d, err := fmm.Direct(sources, req.Charges, targets)
	if err != nil {
		return nil, err
	}
	metrics.OperationsTotal.WithLabelValues("direct_pair").Add(float64(d.Pairs))
	metrics.OperationsTotal.WithLabelValues("coincident_pair").Add(float64(d.CoincidentPairs))
	return &Result{
		Method:     MethodDirect,
		Potentials: d.Potentials,
		Stats: Counters{
			DirectPairs:     d.Pairs,
			CoincidentPairs: d.CoincidentPairs,
			Operations:      d.Pairs,
		},
	}, nil
}

// withTimeout bounds the wall time a caller waits. A solve cannot be
// interrupted, so on timeout the computation finishes in the background and
// its result is dropped.
func (s *Service) withTimeout(ctx context.Context, fn func(context.Context) (*Result, error)) (*Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.cfg.Timeout)
		}
		return nil, ctx.Err()
	}
}

func (s *Service) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	err := s.breaker.Call(fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: shedding load after repeated slow or failed solves", ErrUnavailable)
	}
	return err
}

func (s *Service) fail(ctx context.Context, span trace.Span, method string, req Request, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	status := "failed"
	switch {
	case IsInvalidInput(err):
		status = "invalid"
	case errors.Is(err, ErrTooLarge):
		status = "too_large"
	case errors.Is(err, ErrTimeout):
		status = "timeout"
	case errors.Is(err, ErrUnavailable):
		status = "unavailable"
	case errors.Is(err, context.Canceled):
		status = "canceled"
	}
	metrics.SolvesTotal.WithLabelValues(method, status).Inc()

	if status == "failed" {
		logger.ErrorContext(ctx, "solve failed", "component", "solve", "method", method, "error", err)
		errorreporting.CaptureErrorWithContext(err,
			map[string]string{"component": "solve", "method": method},
			map[string]any{
				"sources": len(req.Sources),
				"targets": len(req.Targets),
				"order":   req.Order,
				"level":   req.Level,
			},
		)
	} else {
		s.log.Debug("solve rejected", "method", method, "status", status, "error", err)
	}
	return err
}

func recordStats(st fmm.Stats) {
	for ph := fmm.PhaseSeeded; ph <= fmm.PhaseEvaluated; ph++ {
		metrics.PhaseDuration.WithLabelValues(ph.String()).Observe(st.Durations[ph].Seconds())
	}
	for kind, n := range map[string]int64{
		"far_coefficients": st.FarCoefficients,
		"far_to_far":       st.FarToFar,
		"far_to_near":      st.FarToNear,
		"near_to_near":     st.NearToNear,
		"local_eval":       st.LocalEvaluations,
		"direct_pair":      st.DirectPairs,
		"coincident_pair":  st.CoincidentPairs,
	} {
		metrics.OperationsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func (s *Service) cacheKey(method string, req Request) string {
	if s.cache == nil {
		return ""
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	return cache.Key(method+":"+strconv.Itoa(s.cfg.MinLevel)+"-"+strconv.Itoa(s.cfg.MaxLevel), payload)
}

func (s *Service) lookup(method, key string) (*Result, bool) {
	if key == "" {
		return nil, false
	}
	data, ok := s.cache.Get(key)
	if !ok {
		metrics.APICacheMisses.WithLabelValues(method).Inc()
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		s.log.Warn("dropping unreadable cache entry", "key", key, "error", err)
		s.cache.Delete(key)
		metrics.APICacheMisses.WithLabelValues(method).Inc()
		return nil, false
	}
	metrics.APICacheHits.WithLabelValues(method).Inc()
	res.Cached = true
	return &res, true
}

func (s *Service) store(key string, res *Result) {
	if key == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.log.Warn("failed to encode result for cache", "error", err)
		return
	}
	s.cache.Set(key, data, s.cfg.CacheTTL)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(logger.RequestIDKey).(string)
	return id
}
