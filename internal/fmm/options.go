package fmm

import (
	"fmt"
	"log/slog"

	"github.com/kbrauss/FMM2D/internal/logger"
	"github.com/kbrauss/FMM2D/internal/spatial"
)

const (
	// MaxLevel is the deepest supported refinement level.
	MaxLevel = spatial.MaxLevel
	// MinLevel is the shallowest supported refinement level.
	MinLevel = 1
)

// Options configures tree construction.
type Options struct {
	// Order is the truncation order p.
	Order int
	// Level is the leaf refinement level L in [MinLevel, MaxLevel].
	Level int
	// Logger receives phase-level debug output. Nil means the package logger
	// tagged with component=fmm.
	Logger *slog.Logger
}

func (o Options) validate() error {
	if o.Order <= 0 {
		return fmt.Errorf("%w: p=%d", ErrInvalidOrder, o.Order)
	}
	if o.Level < MinLevel || o.Level > MaxLevel {
		return fmt.Errorf("%w: L=%d not in [%d,%d]", ErrInvalidLevel, o.Level, MinLevel, MaxLevel)
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.WithComponent("fmm")
}
