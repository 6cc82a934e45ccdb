package paygate

import (
	"strconv"
	"strings"
	"time"
)

const (
	// MaxValidSeconds caps an intent's validity window (protocol maximum).
	MaxValidSeconds int64 = 3600

	// DefaultValidSeconds applies when the transport omits the
	// validity-duration field.
	DefaultValidSeconds int64 = 300
)

// PaymentIntent is a signed, single-use, time-bounded authorization to
// spend Amount (in smallest currency units) on the job named by JobID.
// Immutable once constructed; consumed exactly once by the used-intent
// ledger.
type PaymentIntent struct {
	ID              string `json:"id" validate:"required"`
	Payer           string `json:"payer" validate:"required"`
	Amount          int64  `json:"amount" validate:"gt=0"`
	JobID           string `json:"jobId" validate:"required"`
	IssuedAt        string `json:"timestamp" validate:"required"` // RFC3339, signed verbatim
	ValidForSeconds int64  `json:"expiresIn" validate:"gt=0"`
	Signature       string `json:"signature" validate:"required"`
}

// TransportFields are the raw wire fields an intent is assembled from
// (HTTP headers or the body's payment object). ExpiresIn may be empty;
// it defaults to DefaultValidSeconds.
type TransportFields struct {
	IntentID  string
	Payer     string
	Amount    string
	JobID     string
	Timestamp string
	ExpiresIn string
	Signature string
}

// FromTransport assembles a PaymentIntent from wire fields, applying the
// protocol default validity when the duration field is absent. Malformed
// numeric fields come back as zero values and are caught by the verifier's
// structural checks, so transport parsing never decides admission.
func FromTransport(f TransportFields) *PaymentIntent {
	amount, _ := strconv.ParseInt(strings.TrimSpace(f.Amount), 10, 64)

	validFor := DefaultValidSeconds
	if s := strings.TrimSpace(f.ExpiresIn); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			validFor = n
		} else {
			validFor = 0 // present but garbage: fail structural checks, not silently default
		}
	}

	return &PaymentIntent{
		ID:              strings.TrimSpace(f.IntentID),
		Payer:           strings.TrimSpace(f.Payer),
		Amount:          amount,
		JobID:           strings.TrimSpace(f.JobID),
		IssuedAt:        strings.TrimSpace(f.Timestamp),
		ValidForSeconds: validFor,
		Signature:       strings.TrimSpace(f.Signature),
	}
}

// CanonicalMessage returns the signable message for this intent's fields.
func (in *PaymentIntent) CanonicalMessage() string {
	return CanonicalMessage(in.Payer, in.Amount, in.JobID, in.IssuedAt, in.ValidForSeconds)
}

// DerivedID recomputes the deterministic id from the intent's fields.
func (in *PaymentIntent) DerivedID() string {
	return DeriveIntentID(in.Payer, in.Amount, in.JobID, in.IssuedAt, in.ValidForSeconds)
}

// ExpiresAt parses IssuedAt and returns the instant the intent dies.
func (in *PaymentIntent) ExpiresAt() (time.Time, error) {
	issued, err := time.Parse(time.RFC3339Nano, in.IssuedAt)
	if err != nil {
		return time.Time{}, err
	}
	return issued.Add(time.Duration(in.ValidForSeconds) * time.Second), nil
}
