package fmm

import "errors"

// Precondition violations. A solve never returns partial output alongside one
// of these.
var (
	ErrInvalidOrder     = errors.New("fmm: truncation order must be positive")
	ErrInvalidLevel     = errors.New("fmm: refinement level out of range")
	ErrChargeMismatch   = errors.New("fmm: number of charges does not match number of sources")
	ErrPointOutOfDomain = errors.New("fmm: point outside the unit square")
	ErrNonFiniteInput   = errors.New("fmm: non-finite coordinate or charge")
)

// Call-order violations.
var (
	ErrPhaseOrder     = errors.New("fmm: phase called out of order")
	ErrAlreadySolved  = errors.New("fmm: solver already evaluated")
	ErrInvalidRange   = errors.New("fmm: invalid depth search range")
	ErrInvalidTreeArg = errors.New("fmm: nil tree")
)
