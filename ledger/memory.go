package ledger

import (
	"context"
	"sync"
	"time"

	"x402-gateway/clock"
)

// Memory is the in-process Ledger: a mutex-protected map with a periodic
// sweep. Suited to single-instance deployments; use Redis or Postgres
// when several gateway instances share the admission decision.
type Memory struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[string]time.Time // id -> expiresAt

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemory returns an in-process ledger. Call Start to enable the sweep
// and Stop on shutdown.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clk:     clk,
		entries: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
}

// Reserve inserts id if absent (or if its previous reservation already
// expired) under a single lock acquisition, so racing callers can never
// both succeed.
func (m *Memory) Reserve(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	now := m.clk.Now()
	if !expiresAt.After(now) {
		// Already-dead intent: nothing to block, the verifier rejects it.
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[id]; ok && existing.After(now) {
		return false, nil
	}
	m.entries[id] = expiresAt
	return true, nil
}

// IsReserved reports whether id holds a live (non-expired) reservation.
func (m *Memory) IsReserved(_ context.Context, id string) (bool, error) {
	now := m.clk.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.entries[id]
	return ok && expiresAt.After(now), nil
}

// Len returns the number of entries, expired ones included (they are
// gone after the next sweep).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes dead entries. Idempotent; purely garbage collection, it
// can never flip an admission decision because expired entries already
// read as not reserved.
func (m *Memory) Sweep() {
	now := m.clk.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, expiresAt := range m.entries {
		if !expiresAt.After(now) {
			delete(m.entries, id)
		}
	}
}

// Start launches the periodic sweep. Stop cancels it.
func (m *Memory) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop cancels the sweep goroutine. Safe to call more than once, and
// safe to call without a prior Start.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
