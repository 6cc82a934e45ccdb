// Package breaker guards calls to an unreliable downstream dependency,
// failing fast after repeated failures and probing recovery after a
// cool-down.
package breaker

import (
	"errors"
	"sync"
	"time"

	"x402-gateway/clock"
)

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned without invoking the guarded call while the breaker
// is open (or while a half-open probe is already in flight).
var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a three-state circuit breaker. closed → open after Threshold
// consecutive failures; open → half-open once Timeout has elapsed since
// the last failure; the single half-open probe closes it on success and
// re-opens it (restarting the timeout clock) on failure. State is
// ephemeral: it does not survive restarts.
type Breaker struct {
	threshold int
	timeout   time.Duration
	clk       clock.Clock

	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time
}

// New returns a closed breaker.
func New(threshold int, timeout time.Duration, clk clock.Clock) *Breaker {
	return &Breaker{threshold: threshold, timeout: timeout, clk: clk}
}

// Execute runs fn under the breaker. While open and inside the cool-down
// it returns ErrOpen immediately; after the cool-down exactly one caller
// becomes the probe, everyone else keeps getting ErrOpen until the probe
// resolves.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.clk.Now().Sub(b.lastFailureAt) < b.timeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen // this caller is the probe
	case HalfOpen:
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailureAt = b.clk.Now()
		if b.state == HalfOpen || b.failures >= b.threshold {
			b.state = Open
		}
		return err
	}
	b.state = Closed
	b.failures = 0
	return nil
}

// Reset forces the breaker closed with a zero failure count. Operator
// intervention only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.lastFailureAt = time.Time{}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// LastFailureAt returns the time of the most recent failure.
func (b *Breaker) LastFailureAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailureAt
}
