// Command fmm runs one potential evaluation from the command line and
// reports the chosen depth, work counters and, optionally, the error
// against direct summation.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/kbrauss/FMM2D/internal/config"
	"github.com/kbrauss/FMM2D/internal/fmm"
	"github.com/kbrauss/FMM2D/internal/logger"
	"github.com/kbrauss/FMM2D/internal/pointgen"
	"github.com/kbrauss/FMM2D/internal/solve"
)

type options struct {
	n         int
	order     int
	level     int
	threshold int
	seed      int64
	lattice   int
	grid      int
	compare   bool
	show      int
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	var o options
	fs := flag.NewFlagSet("fmm", flag.ContinueOnError)
	fs.IntVar(&o.n, "n", 1000, "number of uniformly random sources (and as many targets)")
	fs.IntVar(&o.order, "p", cfg.Order, "truncation order")
	fs.IntVar(&o.level, "level", 0, "refinement level; 0 picks the shallowest level meeting -threshold")
	fs.IntVar(&o.threshold, "threshold", cfg.ClusterThreshold, "max sources or targets per leaf for automatic depth")
	fs.Int64Var(&o.seed, "seed", 1, "random seed")
	fs.IntVar(&o.lattice, "lattice", 0, "use four unit charges per cell of this level as both sources and targets instead of -n random points")
	fs.IntVar(&o.grid, "grid", 0, "evaluate on an n×n grid of cell centers instead of the default targets")
	fs.BoolVar(&o.compare, "compare", false, "also run the direct sum and report the max absolute error")
	fs.IntVar(&o.show, "show", 8, "number of potentials to print")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.n < 0 || o.show < 0 || o.grid < 0 {
		return o, fmt.Errorf("-n, -grid and -show must be non-negative")
	}
	return o, nil
}

func buildRequest(o options) (solve.Request, error) {
	req := solve.Request{
		Order:            o.order,
		Level:            o.level,
		ClusterThreshold: o.threshold,
		Compare:          o.compare,
	}
	if o.lattice > 0 {
		pts, err := pointgen.Lattice(o.lattice)
		if err != nil {
			return req, err
		}
		req.Sources = solve.Points(pts)
		req.Targets = req.Sources
		req.Charges = pointgen.UnitCharges(len(pts))
	} else {
		rng := rand.New(rand.NewSource(o.seed))
		req.Sources = solve.Points(pointgen.Uniform(rng, o.n))
		req.Charges = pointgen.Charges(rng, o.n)
		req.Targets = solve.Points(pointgen.Uniform(rng, o.n))
	}
	if o.grid > 0 {
		req.Targets = solve.Points(pointgen.Grid(o.grid))
	}
	return req, nil
}

func report(w io.Writer, res *solve.Result, show int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "order\t%d\n", res.Order)
	fmt.Fprintf(tw, "level\t%d\n", res.Level)
	fmt.Fprintf(tw, "cluster threshold\t%d\n", res.ClusterThreshold)
	if o := res.Occupancy; o != nil {
		fmt.Fprintf(tw, "leaves\t%d (%d non-empty)\n", o.Leaves, o.NonEmptyLeaves)
		fmt.Fprintf(tw, "per leaf\tsources max %d mean %.2f, targets max %d mean %.2f\n",
			o.MaxSources, o.MeanSources, o.MaxTargets, o.MeanTargets)
	}
	s := res.Stats
	fmt.Fprintf(tw, "far coefficients\t%d\n", s.FarCoefficients)
	fmt.Fprintf(tw, "translations\tS|S %d, S|R %d, R|R %d\n", s.FarToFar, s.FarToNear, s.NearToNear)
	fmt.Fprintf(tw, "local evaluations\t%d\n", s.LocalEvaluations)
	fmt.Fprintf(tw, "direct pairs\t%d (%d coincident skipped)\n", s.DirectPairs, s.CoincidentPairs)
	fmt.Fprintf(tw, "operations\t%d\n", s.Operations)
	for ph := fmm.PhaseSeeded; ph <= fmm.PhaseEvaluated; ph++ {
		fmt.Fprintf(tw, "phase %s\t%.3f ms\n", ph, s.PhaseMillis[ph.String()])
	}
	fmt.Fprintf(tw, "total\t%.3f ms\n", res.DurationMillis)
	if res.MaxError != nil {
		fmt.Fprintf(tw, "max error vs direct\t%.3e at target %d\n", *res.MaxError, *res.MaxErrorIndex)
	}
	tw.Flush()

	for i := 0; i < show && i < len(res.Potentials); i++ {
		fmt.Fprintf(w, "phi[%d] = %.12g\n", i, res.Potentials[i])
	}
}

func run(args []string, stdout io.Writer) error {
	cfg := config.Load()
	o, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}
	req, err := buildRequest(o)
	if err != nil {
		return err
	}

	svcCfg := solve.ConfigFrom(cfg)
	svcCfg.Timeout = 0
	svcCfg.MaxPoints = len(req.Sources) + len(req.Targets)
	if o.compare && svcCfg.CompareMaxPairs < int64(len(req.Sources))*int64(len(req.Targets)) {
		logger.Warn("direct comparison is O(N·M) and may take a while",
			"pairs", int64(len(req.Sources))*int64(len(req.Targets)))
		svcCfg.CompareMaxPairs = int64(len(req.Sources)) * int64(len(req.Targets))
	}

	logger.WithFields(map[string]any{
		"sources": len(req.Sources),
		"targets": len(req.Targets),
		"order":   req.Order,
		"level":   req.Level,
	}).Debug("solving")
	start := time.Now()
	res, err := solve.NewService(svcCfg, nil).Run(context.Background(), req)
	if err != nil {
		return err
	}
	logger.Debug("solve finished", "elapsed", time.Since(start))
	report(stdout, res, o.show)
	return nil
}

func main() {
	_ = godotenv.Load()
	logger.InitWithWriter(config.Load().LogLevel, os.Stderr)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if err == flag.ErrHelp {
			return
		}
		logger.Error("fmm failed", "error", err)
		os.Exit(1)
	}
}
