// Package circuitbreaker sheds load from an operation that keeps failing.
// The solve service wraps computations with it so that a server pinned by
// solves that run past their deadline answers fast with 503 until it
// recovers.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/kbrauss/FMM2D/internal/metrics"
)

// ErrCircuitOpen is returned by Call while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes needed to close from half-open
	Cooldown         time.Duration // time open before a trial call is let through
	// IsFailure decides which errors count against the breaker. Nil counts
	// every non-nil error.
	IsFailure func(error) bool
}

// CircuitBreaker implements a circuit breaker pattern
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time

	// set while the single half-open trial call runs
	trialInFlight bool

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	isFailure        func(error) bool
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}

	cb := &CircuitBreaker{
		state:            StateClosed,
		now:              time.Now,
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		isFailure:        cfg.IsFailure,
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return cb
}

// Call runs fn unless the breaker is open. Errors not classified as
// failures are returned unchanged and count as successes. While half-open
// only one trial call runs at a time; the rest are rejected. A panic in fn
// counts as a failure.
func (cb *CircuitBreaker) Call(fn func() error) error {
	ok, trial := cb.allow()
	if !ok {
		metrics.CircuitBreakerRejections.WithLabelValues(cb.name).Inc()
		return ErrCircuitOpen
	}

	failed := true
	defer func() { cb.record(trial, failed) }()
	err := fn()
	failed = cb.isFailure(err)
	return err
}

func (cb *CircuitBreaker) allow() (ok, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, false
		}
		cb.setState(StateHalfOpen)
		cb.successes = 0
		cb.trialInFlight = true
		return true, true
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	default:
		return true, false
	}
}

// record applies the outcome of an admitted call. Non-trial calls that
// finish after the breaker left the closed state were started before the
// trip and are ignored.
func (cb *CircuitBreaker) record(trial, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
		if cb.state != StateHalfOpen {
			return
		}
		if failed {
			cb.successes = 0
			cb.trip()
			return
		}
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.failures, cb.successes = 0, 0
			cb.setState(StateClosed)
		}
		return
	}

	if cb.state != StateClosed {
		return
	}
	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.failureThreshold {
		cb.trip()
	}
}

// trip opens the breaker. Callers hold mu.
func (cb *CircuitBreaker) trip() {
	cb.failures = 0
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// State returns the current state without advancing an expired cooldown.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
