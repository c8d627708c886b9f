package dispatcher

import (
	"fmt"
	"sync"
	"time"
)

// breakerState is the circuit breaker's state.
type breakerState int

const (
	breakerClosed   breakerState = 0 // normal operation, requests pass through
	breakerOpen     breakerState = 1 // tripped, requests rejected immediately
	breakerHalfOpen breakerState = 2 // testing, calls pass through and the next result decides
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker wraps notification delivery so a persistently failing
// channel doesn't pile up blocked send attempts. After maxFailures
// consecutive failures it opens and rejects calls for resetTimeout, then
// turns half-open: calls are let through again and the first result to come
// back closes or reopens it. Half-open calls are not limited to one probe.
type circuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	onStateChange func(from, to breakerState)
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        breakerClosed,
	}
}

// errCircuitOpen is returned when the breaker is open and the reset timeout
// hasn't elapsed yet.
var errCircuitOpen = fmt.Errorf("circuit breaker is open")

func (cb *circuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	switch cb.state {
	case breakerOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(breakerHalfOpen)
		} else {
			cb.mu.Unlock()
			return errCircuitOpen
		}
	case breakerHalfOpen:
		// let the call through; the lock is released before fn runs, so
		// concurrent half-open calls all proceed
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == breakerHalfOpen {
			cb.transition(breakerOpen)
		} else if cb.failures >= cb.maxFailures {
			cb.transition(breakerOpen)
		}
		return err
	}

	if cb.state == breakerHalfOpen {
		cb.transition(breakerClosed)
	}
	cb.failures = 0
	return nil
}

func (cb *circuitBreaker) currentState() breakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) transition(to breakerState) {
	from := cb.state
	cb.state = to
	if to == breakerClosed {
		cb.failures = 0
	}
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
