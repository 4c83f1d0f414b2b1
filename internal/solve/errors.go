package solve

import (
	"context"
	"errors"

	"github.com/kbrauss/FMM2D/internal/fmm"
)

var (
	ErrInvalidRequest = errors.New("solve: invalid request")
	ErrTooLarge       = errors.New("solve: request exceeds configured limits")
	ErrTimeout        = errors.New("solve: deadline exceeded")
	// ErrUnavailable is returned while recent solves keep timing out or
	// failing and new work is being shed.
	ErrUnavailable = errors.New("solve: temporarily unavailable")
)

// IsInvalidInput reports whether err was caused by the caller's input rather
// than a failure inside the solver.
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		fmm.ErrInvalidOrder,
		fmm.ErrInvalidLevel,
		fmm.ErrChargeMismatch,
		fmm.ErrPointOutOfDomain,
		fmm.ErrNonFiniteInput,
		fmm.ErrInvalidRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// countsAgainstBreaker reports whether err says something about the health
// of the server rather than about the request.
func countsAgainstBreaker(err error) bool {
	switch {
	case err == nil, IsInvalidInput(err), errors.Is(err, ErrTooLarge), errors.Is(err, context.Canceled):
		return false
	}
	return true
}
