package enrich

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the workflow while its
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets probe calls through; one failure reopens.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker guards one workflow endpoint. It opens after threshold
// consecutive failed calls, half-opens once resetTimeout has passed and
// closes again after halfOpenMax successful probes.
type Breaker struct {
	mu  sync.Mutex
	now func() time.Time

	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int

	state    BreakerState
	failures int
	probes   int
	openedAt time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(threshold int, resetTimeout time.Duration, halfOpenMax int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &Breaker{
		now:          time.Now,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
	}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.probes = 0
	}
	return true
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probes++
		if b.probes >= b.halfOpenMax {
			b.state = StateClosed
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probes = 0
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
