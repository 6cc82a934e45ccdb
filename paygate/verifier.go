package paygate

import (
	"sync"
	"time"

	"x402-gateway/clock"
)

// VerificationOutcome is the result of one verification attempt.
type VerificationOutcome struct {
	Valid            bool   `json:"valid"`
	Code             Code   `json:"error,omitempty"`
	Payer            string `json:"payer,omitempty"`
	Expired          bool   `json:"expired"`
	RemainingSeconds int64  `json:"remainingSeconds"`
}

// Verifier validates structural correctness, expiry and cryptographic
// authenticity of payment intents. Pure with respect to its inputs and
// the injected clock; safe for concurrent use.
type Verifier struct {
	Clock           clock.Clock
	MaxValidSeconds int64
}

// NewVerifier returns a Verifier with the protocol maximum validity window.
func NewVerifier(clk clock.Clock) *Verifier {
	return &Verifier{Clock: clk, MaxValidSeconds: MaxValidSeconds}
}

// CheckStructure runs the non-temporal, non-cryptographic subset of the
// verification checks and returns the intent's expiry instant. The gate
// uses it to fail fast (and to compute the reservation TTL) before the
// atomic reserve; Verify re-runs everything afterwards, so the two can
// never disagree on an outcome.
func (v *Verifier) CheckStructure(in *PaymentIntent) (time.Time, Code) {
	if in == nil || in.Payer == "" || in.JobID == "" || in.IssuedAt == "" || in.Signature == "" || in.ValidForSeconds <= 0 {
		return time.Time{}, CodeMissingFields
	}
	if in.Amount <= 0 {
		return time.Time{}, CodeNonPositiveAmount
	}
	expiresAt, err := in.ExpiresAt()
	if err != nil {
		return time.Time{}, CodeInvalidTimestamp
	}
	if in.ValidForSeconds > v.MaxValidSeconds {
		return time.Time{}, CodeExpirationTooLong
	}
	if _, err := DecodePayer(in.Payer); err != nil {
		return time.Time{}, CodeInvalidPayerFormat
	}
	if _, err := DecodeSignature(in.Signature); err != nil {
		return time.Time{}, CodeInvalidSignatureLength
	}
	return expiresAt, ""
}

// Verify runs the full ordered check sequence, each step short-circuiting:
// presence, positive amount, expiry, validity bound, payer format,
// signature length, ed25519 verification. No I/O, no shared mutable state.
func (v *Verifier) Verify(in *PaymentIntent) VerificationOutcome {
	if in == nil || in.Payer == "" || in.JobID == "" || in.IssuedAt == "" || in.Signature == "" || in.ValidForSeconds <= 0 {
		return VerificationOutcome{Code: CodeMissingFields}
	}
	if in.Amount <= 0 {
		return VerificationOutcome{Code: CodeNonPositiveAmount}
	}

	expiresAt, err := in.ExpiresAt()
	if err != nil {
		return VerificationOutcome{Code: CodeInvalidTimestamp}
	}
	now := v.Clock.Now()
	if now.After(expiresAt) {
		return VerificationOutcome{Code: CodeIntentExpired, Expired: true}
	}

	if in.ValidForSeconds > v.MaxValidSeconds {
		return VerificationOutcome{Code: CodeExpirationTooLong}
	}

	payerKey, err := DecodePayer(in.Payer)
	if err != nil {
		return VerificationOutcome{Code: CodeInvalidPayerFormat}
	}
	sig, err := DecodeSignature(in.Signature)
	if err != nil {
		return VerificationOutcome{Code: CodeInvalidSignatureLength}
	}

	if !VerifySignature(in.CanonicalMessage(), sig, payerKey) {
		return VerificationOutcome{Code: CodeSignatureVerificationFailed}
	}

	return VerificationOutcome{
		Valid:            true,
		Payer:            in.Payer,
		RemainingSeconds: int64(expiresAt.Sub(now) / time.Second),
	}
}

// VerifyBatch verifies a collection of intents concurrently and returns a
// map from intent id to outcome. Verification of one intent is fully
// independent of the others; there is no shared error state. Intents
// without a transported id are keyed by their derived id.
func (v *Verifier) VerifyBatch(intents []*PaymentIntent) map[string]VerificationOutcome {
	out := make(map[string]VerificationOutcome, len(intents))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, in := range intents {
		if in == nil {
			continue
		}
		wg.Add(1)
		go func(in *PaymentIntent) {
			defer wg.Done()
			key := in.ID
			if key == "" {
				key = in.DerivedID()
			}
			outcome := v.Verify(in)
			mu.Lock()
			out[key] = outcome
			mu.Unlock()
		}(in)
	}
	wg.Wait()
	return out
}
