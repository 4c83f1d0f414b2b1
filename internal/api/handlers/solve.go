package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kbrauss/FMM2D/internal/apierr"
	"github.com/kbrauss/FMM2D/internal/logger"
	"github.com/kbrauss/FMM2D/internal/solve"
)

// Solver is the part of solve.Service the handlers need.
type Solver interface {
	Run(ctx context.Context, req solve.Request) (*solve.Result, error)
	RunDirect(ctx context.Context, req solve.Request) (*solve.Result, error)
}

// SolveHandler serves potential evaluations.
type SolveHandler struct {
	svc       Solver
	maxPoints int
}

// NewSolveHandler creates a solve handler. maxPoints is only echoed back in
// SOLVE_TOO_LARGE responses; the service enforces it.
func NewSolveHandler(svc Solver, maxPoints int) *SolveHandler {
	return &SolveHandler{svc: svc, maxPoints: maxPoints}
}

// PostSolve evaluates potentials with the FMM.
// POST /api/solve
func (h *SolveHandler) PostSolve(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.Run)
}

// PostSolveDirect evaluates potentials by direct summation.
// POST /api/solve/direct
func (h *SolveHandler) PostSolveDirect(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.svc.RunDirect)
}

func (h *SolveHandler) serve(w http.ResponseWriter, r *http.Request, run func(context.Context, solve.Request) (*solve.Result, error)) {
	var req solve.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			apierr.WriteErrorWithContext(w, r, apierr.New(apierr.ErrSolveTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).
				WithDetails(map[string]any{"max_bytes": maxErr.Limit}))
		case errors.Is(err, io.EOF):
			apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("sources"))
		default:
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		}
		return
	}

	res, err := run(r.Context(), req)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, h.toAPIError(err))
		return
	}

	writeSolveHeaders(w.Header(), res)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger.WarnContext(r.Context(), "failed to encode solve response", "error", err)
	}
}

// Response headers carrying the parts of a result that differ between
// identical requests. The body stays byte-stable so its ETag holds.
const (
	HeaderCache         = "X-Cache"
	HeaderSolveDuration = "X-Solve-Duration-Ms"
	HeaderSolvePhases   = "X-Solve-Phase-Ms"
)

func writeSolveHeaders(h http.Header, res *solve.Result) {
	if res.Cached {
		h.Set(HeaderCache, "HIT")
	} else {
		h.Set(HeaderCache, "MISS")
	}
	h.Set(HeaderSolveDuration, strconv.FormatFloat(res.DurationMillis, 'f', 3, 64))
	if phases := res.Stats.PhaseSummary(); phases != "" {
		h.Set(HeaderSolvePhases, phases)
	}
}

func (h *SolveHandler) toAPIError(err error) *apierr.Error {
	switch {
	case solve.IsInvalidInput(err):
		return apierr.SolveInvalidInput(err.Error())
	case errors.Is(err, solve.ErrTooLarge):
		e := apierr.SolveTooLarge(h.maxPoints)
		e.Message = err.Error()
		return e
	case errors.Is(err, solve.ErrTimeout):
		return apierr.SolveTimeout()
	case errors.Is(err, solve.ErrUnavailable):
		return apierr.SystemUnavailable("Solver is shedding load, retry later")
	case errors.Is(err, context.Canceled):
		return apierr.SystemUnavailable("Request canceled")
	default:
		return apierr.SolveFailed("")
	}
}
