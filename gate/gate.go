// Package gate composes verifier, used-intent ledger, rate limiter and
// circuit breaker into the request-admission decision.
package gate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"x402-gateway/breaker"
	"x402-gateway/clock"
	"x402-gateway/ledger"
	"x402-gateway/paygate"
	"x402-gateway/ratelimit"
)

// Policy holds the gate's configured admission bounds.
type Policy struct {
	MinAmount int64
	MaxAmount int64

	// StrictIntentID recomputes the id from the verified fields and
	// rejects callers whose transported id does not match. Off by
	// default: the original protocol trusts the transported id once the
	// signature checks out.
	StrictIntentID bool
}

// MetricsSink receives admission counters. Implementations must never
// block or fail the caller.
type MetricsSink interface {
	RecordAdmission(payer string, amount int64)
	RecordRejection(code paygate.Code)
	RecordBreakerState(s breaker.State)
}

// NopSink discards all metrics.
type NopSink struct{}

func (NopSink) RecordAdmission(string, int64)    {}
func (NopSink) RecordRejection(paygate.Code)     {}
func (NopSink) RecordBreakerState(breaker.State) {}

// Admission is a successful gate decision. The gate performs no
// settlement; callers get the intent and its verification outcome back,
// nothing else.
type Admission struct {
	Intent    *paygate.PaymentIntent      `json:"intent"`
	Outcome   paygate.VerificationOutcome `json:"outcome"`
	RequestID string                      `json:"requestId"`
}

// Rejection is a typed gate refusal. Code is the stable contract; no
// internal error detail leaks past this taxonomy.
type Rejection struct {
	Code      paygate.Code   `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId"`
}

// Config wires a Gate. Breaker is optional; when set together with
// SharedLedger, ledger round trips run guarded (the one network call on
// the admission path).
type Config struct {
	Verifier     *paygate.Verifier
	Ledger       ledger.Ledger
	Limiter      *ratelimit.Limiter
	Breaker      *breaker.Breaker
	SharedLedger bool
	Policy       Policy
	Clock        clock.Clock
	Metrics      MetricsSink
}

// Gate owns the admission pipeline. All shared state lives in the
// injected collaborators; the Gate itself is safe for concurrent use.
type Gate struct {
	verifier     *paygate.Verifier
	ledger       ledger.Ledger
	limiter      *ratelimit.Limiter
	breaker      *breaker.Breaker
	sharedLedger bool
	policy       Policy
	clk          clock.Clock
	metrics      MetricsSink
}

// New builds a Gate from cfg, defaulting the clock, verifier and metrics
// sink when unset.
func New(cfg Config) *Gate {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = paygate.NewVerifier(cfg.Clock)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopSink{}
	}
	return &Gate{
		verifier:     cfg.Verifier,
		ledger:       cfg.Ledger,
		limiter:      cfg.Limiter,
		breaker:      cfg.Breaker,
		sharedLedger: cfg.SharedLedger,
		policy:       cfg.Policy,
		clk:          cfg.Clock,
		metrics:      cfg.Metrics,
	}
}

// Admit runs the fixed check order: structural validity, atomic reserve,
// amount bounds, cryptographic verification, rate/volume. The ordering is
// security-relevant: the reservation happens before the expensive checks
// and is never rolled back on a later failure, so a failed attempt still
// burns the id and cannot be used to probe for a replayable intent.
func (g *Gate) Admit(ctx context.Context, intent *paygate.PaymentIntent) (*Admission, *Rejection) {
	requestID := uuid.NewString()

	// 1. Structural validity (also yields the reservation expiry).
	expiresAt, code := g.verifier.CheckStructure(intent)
	if code != "" {
		return nil, g.reject(requestID, code, nil)
	}
	if intent.ID == "" {
		return nil, g.reject(requestID, paygate.CodeMissingFields, nil)
	}

	// 2. Atomic reserve. The one decision that must hold under races.
	reserved, err := g.reserve(ctx, intent.ID, expiresAt)
	if err != nil {
		if err == breaker.ErrOpen {
			return nil, g.reject(requestID, paygate.CodeBreakerOpen, nil)
		}
		return nil, g.reject(requestID, paygate.CodeStoreUnavailable, nil)
	}
	if !reserved {
		return nil, g.reject(requestID, paygate.CodeIntentAlreadyUsed, nil)
	}

	// 3. Configured amount bounds.
	if g.policy.MinAmount > 0 && intent.Amount < g.policy.MinAmount {
		return nil, g.reject(requestID, paygate.CodeAmountBelowMinimum, map[string]any{
			"provided": intent.Amount,
			"required": g.policy.MinAmount,
		})
	}
	if g.policy.MaxAmount > 0 && intent.Amount > g.policy.MaxAmount {
		return nil, g.reject(requestID, paygate.CodeAmountAboveMaximum, map[string]any{
			"provided": intent.Amount,
			"allowed":  g.policy.MaxAmount,
		})
	}

	// 4. Cryptographic verification (structure, expiry, signature).
	outcome := g.verifier.Verify(intent)
	if !outcome.Valid {
		return nil, g.reject(requestID, outcome.Code, nil)
	}
	if g.policy.StrictIntentID {
		if derived := intent.DerivedID(); derived != intent.ID {
			return nil, g.reject(requestID, paygate.CodeInvalidIntentID, map[string]any{
				"provided": intent.ID,
				"derived":  derived,
			})
		}
	}

	// 5. Rate/volume ceilings for the now-authenticated payer.
	if g.limiter != nil {
		if d := g.limiter.Allow(intent.Payer, intent.Amount); !d.Allowed {
			return nil, g.reject(requestID, d.Code, map[string]any{
				"requestCount":  d.RequestCount,
				"currentVolume": d.CurrentVolume,
			})
		}
	}

	g.metrics.RecordAdmission(intent.Payer, intent.Amount)
	return &Admission{Intent: intent, Outcome: outcome, RequestID: requestID}, nil
}

func (g *Gate) reserve(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	if g.breaker == nil || !g.sharedLedger {
		return g.ledger.Reserve(ctx, id, expiresAt)
	}
	var reserved bool
	err := g.breaker.Execute(func() error {
		var inner error
		reserved, inner = g.ledger.Reserve(ctx, id, expiresAt)
		return inner
	})
	g.metrics.RecordBreakerState(g.breaker.State())
	return reserved, err
}

func (g *Gate) reject(requestID string, code paygate.Code, details map[string]any) *Rejection {
	g.metrics.RecordRejection(code)
	return &Rejection{
		Code:      code,
		Message:   code.Message(),
		Details:   details,
		RequestID: requestID,
	}
}

// Breaker exposes the gate's breaker for operator endpoints; nil when
// none is configured.
func (g *Gate) Breaker() *breaker.Breaker { return g.breaker }

// Limiter exposes the gate's limiter for operator inspection.
func (g *Gate) Limiter() *ratelimit.Limiter { return g.limiter }
