package paygate

// Code is a stable machine-readable rejection/verification error code.
// Codes are part of the wire contract; callers key retry logic off them,
// so they must never change once shipped.
type Code string

const (
	// Structural
	CodeMissingFields          Code = "missing_fields"
	CodeNonPositiveAmount      Code = "non_positive_amount"
	CodeInvalidTimestamp       Code = "invalid_timestamp"
	CodeInvalidPayerFormat     Code = "invalid_payer_format"
	CodeInvalidSignatureLength Code = "invalid_signature_length"

	// Temporal
	CodeIntentExpired     Code = "intent_expired"
	CodeExpirationTooLong Code = "expiration_too_long"

	// Cryptographic
	CodeSignatureVerificationFailed Code = "signature_verification_failed"

	// Policy
	CodeAmountBelowMinimum  Code = "amount_below_minimum"
	CodeAmountAboveMaximum  Code = "amount_above_maximum"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodeVolumeLimitExceeded Code = "volume_limit_exceeded"

	// Replay
	CodeIntentAlreadyUsed Code = "intent_already_used"
	CodeInvalidIntentID   Code = "invalid_intent_id"

	// Dependency
	CodeBreakerOpen      Code = "breaker_open"
	CodeStoreUnavailable Code = "store_unavailable"
)

var codeMessages = map[Code]string{
	CodeMissingFields:               "payment intent is missing required fields",
	CodeNonPositiveAmount:           "payment amount must be greater than zero",
	CodeInvalidTimestamp:            "payment timestamp is not a valid RFC3339 time",
	CodeInvalidPayerFormat:          "payer must be a base58-encoded 32-byte public key",
	CodeInvalidSignatureLength:      "signature must be a base58-encoded 64-byte ed25519 signature",
	CodeIntentExpired:               "payment intent has expired",
	CodeExpirationTooLong:           "payment validity window exceeds the protocol maximum",
	CodeSignatureVerificationFailed: "payment signature verification failed",
	CodeAmountBelowMinimum:          "payment amount is below the required minimum",
	CodeAmountAboveMaximum:          "payment amount exceeds the allowed maximum",
	CodeRateLimitExceeded:           "too many requests for this payer, try again later",
	CodeVolumeLimitExceeded:         "spend volume limit exceeded for this payer",
	CodeIntentAlreadyUsed:           "payment intent has already been used",
	CodeInvalidIntentID:             "intent id does not match the signed payment fields",
	CodeBreakerOpen:                 "payment verification temporarily unavailable",
	CodeStoreUnavailable:            "payment store unavailable, try again later",
}

// Message returns the human-readable description for a code. The code
// string itself is the contract; messages may be reworded freely.
func (c Code) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return "payment rejected"
}
