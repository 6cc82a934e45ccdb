// Package ratelimit enforces per-identity admission ceilings: a sliding
// window over request timestamps and a fixed-window spend volume.
package ratelimit

import (
	"sync"
	"time"

	"x402-gateway/clock"
	"x402-gateway/paygate"
)

// Config holds the per-identity ceilings. MaxVolume == 0 disables spend
// tracking entirely.
type Config struct {
	MaxRequests  int           // admitted requests per Window, per identity
	Window       time.Duration // sliding window for request counting
	MaxVolume    int64         // spend ceiling per VolumeWindow (smallest units)
	VolumeWindow time.Duration // fixed window for spend tracking
}

// Decision is the limiter's verdict for one attempt.
type Decision struct {
	Allowed       bool
	Code          paygate.Code // set when rejected
	RequestCount  int          // requests inside the window after this attempt
	CurrentVolume int64        // spend inside the current volume window
}

type identityState struct {
	requests    []time.Time
	volume      int64
	windowStart time.Time
}

// Limiter tracks per-identity window state. Request counting is a sliding
// log (exact semantics: an attempt is admitted iff fewer than MaxRequests
// admitted timestamps fall inside the trailing window). The spend ceiling
// is a fixed window reset wholesale when it elapses — bursts of up to 2x
// MaxVolume are possible across a boundary; accepted trade-off, the
// request ceiling still applies throughout.
type Limiter struct {
	cfg Config
	clk clock.Clock

	mu     sync.Mutex
	idents map[string]*identityState

	stopOnce sync.Once
	stop     chan struct{}
}

// New returns a limiter. Call Start/Stop for the idle-identity sweep.
func New(cfg Config, clk clock.Clock) *Limiter {
	return &Limiter{
		cfg:    cfg,
		clk:    clk,
		idents: make(map[string]*identityState),
		stop:   make(chan struct{}),
	}
}

// Allow evaluates both ceilings for one attempt of the given amount.
// The two ceilings are independent; either rejects alone. Only admitted
// attempts are recorded, so rejected traffic cannot extend a ban.
func (l *Limiter) Allow(identity string, amount int64) Decision {
	now := l.clk.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.idents[identity]
	if !ok {
		st = &identityState{windowStart: now}
		l.idents[identity] = st
	}

	st.requests = pruneBefore(st.requests, now.Add(-l.cfg.Window))
	if len(st.requests) >= l.cfg.MaxRequests {
		return Decision{Code: paygate.CodeRateLimitExceeded, RequestCount: len(st.requests), CurrentVolume: st.volume}
	}

	if l.cfg.MaxVolume > 0 {
		if now.Sub(st.windowStart) >= l.cfg.VolumeWindow {
			st.volume = 0
			st.windowStart = now
		}
		if st.volume+amount > l.cfg.MaxVolume {
			return Decision{Code: paygate.CodeVolumeLimitExceeded, RequestCount: len(st.requests), CurrentVolume: st.volume}
		}
		st.volume += amount
	}

	st.requests = append(st.requests, now)
	return Decision{Allowed: true, RequestCount: len(st.requests), CurrentVolume: st.volume}
}

// Snapshot returns the current window state for an identity, for
// operator inspection. Zero values for unknown identities.
func (l *Limiter) Snapshot(identity string) Decision {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.idents[identity]
	if !ok {
		return Decision{Allowed: true}
	}
	st.requests = pruneBefore(st.requests, now.Add(-l.cfg.Window))
	return Decision{
		Allowed:       len(st.requests) < l.cfg.MaxRequests,
		RequestCount:  len(st.requests),
		CurrentVolume: st.volume,
	}
}

// Sweep drops identities with no activity inside either window, bounding
// memory. Never removes live state: entries with in-window requests or an
// unelapsed volume window stay.
func (l *Limiter) Sweep() {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, st := range l.idents {
		st.requests = pruneBefore(st.requests, now.Add(-l.cfg.Window))
		volumeIdle := l.cfg.MaxVolume == 0 || now.Sub(st.windowStart) >= l.cfg.VolumeWindow
		if len(st.requests) == 0 && volumeIdle {
			delete(l.idents, id)
		}
	}
}

// Identities returns the number of tracked identities.
func (l *Limiter) Identities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.idents)
}

// Start launches the periodic sweep. Stop cancels it.
func (l *Limiter) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop cancels the sweep goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
