package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbrauss/FMM2D/internal/apierr"
	"github.com/kbrauss/FMM2D/internal/fmm"
	"github.com/kbrauss/FMM2D/internal/solve"
)

type stubSolver struct {
	res    *solve.Result
	err    error
	got    solve.Request
	direct bool
}

func (s *stubSolver) Run(_ context.Context, req solve.Request) (*solve.Result, error) {
	s.got = req
	return s.res, s.err
}

func (s *stubSolver) RunDirect(_ context.Context, req solve.Request) (*solve.Result, error) {
	s.got, s.direct = req, true
	return s.res, s.err
}

func doSolve(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/solve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestPostSolve_DecodesRequest(t *testing.T) {
	stub := &stubSolver{res: &solve.Result{Method: solve.MethodFMM, Potentials: []float64{-0.5}, Level: 3, Order: 8}}
	h := NewSolveHandler(stub, 100)

	rr := doSolve(h.PostSolve, `{"sources":[[0.1,0.2]],"charges":[2],"targets":[[0.3,0.4]],"order":8,"level":3,"compare":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected Content-Type %q", ct)
	}

	want := solve.Request{
		Sources: []solve.Point{{0.1, 0.2}},
		Charges: []float64{2},
		Targets: []solve.Point{{0.3, 0.4}},
		Order:   8,
		Level:   3,
		Compare: true,
	}
	if fmt.Sprint(stub.got) != fmt.Sprint(want) {
		t.Errorf("decoded %+v, want %+v", stub.got, want)
	}
	if stub.direct {
		t.Error("PostSolve should not call RunDirect")
	}

	var res solve.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Level != 3 || res.Potentials[0] != -0.5 {
		t.Errorf("unexpected response %+v", res)
	}
}

func TestPostSolveDirect_UsesDirect(t *testing.T) {
	stub := &stubSolver{res: &solve.Result{Method: solve.MethodDirect}}
	h := NewSolveHandler(stub, 100)

	if rr := doSolve(h.PostSolveDirect, `{"sources":[],"targets":[[0.5,0.5]]}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !stub.direct {
		t.Error("PostSolveDirect should call RunDirect")
	}
}

func TestPostSolve_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apierr.ErrorCode
	}{
		{"out of domain", fmt.Errorf("%w: target 0", fmm.ErrPointOutOfDomain), http.StatusBadRequest, apierr.ErrSolveInvalidInput},
		{"bad request", fmt.Errorf("%w: no sources or targets", solve.ErrInvalidRequest), http.StatusBadRequest, apierr.ErrSolveInvalidInput},
		{"too large", fmt.Errorf("%w: 10 points, limit 5", solve.ErrTooLarge), http.StatusRequestEntityTooLarge, apierr.ErrSolveTooLarge},
		{"timeout", fmt.Errorf("%w after 1s", solve.ErrTimeout), http.StatusRequestTimeout, apierr.ErrSolveTimeout},
		{"shedding", fmt.Errorf("%w: shedding load", solve.ErrUnavailable), http.StatusServiceUnavailable, apierr.ErrSystemUnavailable},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, apierr.ErrSystemUnavailable},
		{"internal", errors.New("expansion: zero-length translation"), http.StatusInternalServerError, apierr.ErrSolveFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSolveHandler(&stubSolver{err: tt.err}, 5)
			rr := doSolve(h.PostSolve, `{"sources":[[0.5,0.5]],"targets":[[0.5,0.5]]}`)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var resp apierr.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
			if tt.wantCode == apierr.ErrSolveFailed && strings.Contains(resp.Error.Message, "zero-length") {
				t.Error("internal error details should not leak to clients")
			}
			if tt.wantCode == apierr.ErrSolveTooLarge && resp.Error.Details["max_points"] != float64(5) {
				t.Errorf("expected max_points detail, got %v", resp.Error.Details)
			}
		})
	}
}

func TestPostSolve_BodyTooLarge(t *testing.T) {
	h := NewSolveHandler(&stubSolver{}, 5)
	req := httptest.NewRequest(http.MethodPost, "/api/solve", strings.NewReader(`{"sources":[[0.5,0.5],[0.25,0.25]]}`))
	rr := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rr, req.Body, 8)

	h.PostSolve(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
}

func TestPostSolve_TimingsInHeaders(t *testing.T) {
	stub := &stubSolver{res: &solve.Result{
		Method:         solve.MethodFMM,
		Potentials:     []float64{1},
		Stats:          solve.Counters{PhaseMillis: map[string]float64{"upward": 0.25, "seed": 0.5}},
		DurationMillis: 1.5,
		Cached:         true,
	}}
	rr := doSolve(NewSolveHandler(stub, 100).PostSolve, `{"sources":[[0.5,0.5]],"targets":[[0.5,0.5]]}`)

	if got := rr.Header().Get(HeaderCache); got != "HIT" {
		t.Errorf("%s = %q, want HIT", HeaderCache, got)
	}
	if got := rr.Header().Get(HeaderSolveDuration); got != "1.500" {
		t.Errorf("%s = %q, want 1.500", HeaderSolveDuration, got)
	}
	if got := rr.Header().Get(HeaderSolvePhases); got != "seed=0.500, upward=0.250" {
		t.Errorf("%s = %q", HeaderSolvePhases, got)
	}
	for _, field := range []string{"duration_ms", "cached", "phase_ms"} {
		if strings.Contains(rr.Body.String(), field) {
			t.Errorf("body should not carry %q: %s", field, rr.Body.String())
		}
	}
}
