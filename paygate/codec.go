package paygate

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// MessagePrefix domain-separates x402 signatures: a signature over a
// canonical payment message can never double as a signature for another
// protocol that signs similarly shaped data.
const MessagePrefix = "x402-payment:"

// PayerKeySize and SignatureSize are the raw ed25519 sizes; payer keys
// and signatures travel base58-encoded on the wire.
const (
	PayerKeySize  = ed25519.PublicKeySize  // 32
	SignatureSize = ed25519.SignatureSize  // 64
	intentIDBytes = 16                     // sha256 prefix length for derived ids
)

// ErrInvalidKeyLength is returned by Sign when the secret key is not a
// 64-byte ed25519 private key. This is a programming error at signing
// time, never a verification outcome.
var ErrInvalidKeyLength = errors.New("secret key must be a 64-byte ed25519 private key")

// CanonicalMessage builds the exact byte sequence that is signed and later
// re-derived for verification:
//
//	x402-payment:<payer>:<amount>:<jobId>:<issuedAt>:<validForSeconds>
//
// issuedAt is the transported timestamp string verbatim; re-formatting it
// would break byte-for-byte interoperability with other client stacks.
func CanonicalMessage(payer string, amount int64, jobID, issuedAt string, validForSeconds int64) string {
	return fmt.Sprintf("%s%s:%d:%s:%s:%d", MessagePrefix, payer, amount, jobID, issuedAt, validForSeconds)
}

// Sign signs the canonical message for the given intent fields and returns
// the raw 64-byte signature.
func Sign(payer string, amount int64, jobID, issuedAt string, validForSeconds int64, secretKey []byte) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyLength
	}
	msg := CanonicalMessage(payer, amount, jobID, issuedAt, validForSeconds)
	return ed25519.Sign(ed25519.PrivateKey(secretKey), []byte(msg)), nil
}

// VerifySignature runs pure ed25519 verification of signature over message.
// Returns false (never panics) for wrong-length inputs.
func VerifySignature(message string, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), []byte(message), signature)
}

// DeriveIntentID computes the deterministic intent id: the base58 encoding
// of the first 16 bytes of sha256(canonical message). Two logically
// identical intents always collide on id, which makes submission
// idempotent by construction.
func DeriveIntentID(payer string, amount int64, jobID, issuedAt string, validForSeconds int64) string {
	sum := sha256.Sum256([]byte(CanonicalMessage(payer, amount, jobID, issuedAt, validForSeconds)))
	return base58.Encode(sum[:intentIDBytes])
}

// DecodePayer decodes a base58 payer key, enforcing the 32-byte length.
func DecodePayer(payer string) ([]byte, error) {
	raw, err := base58.Decode(payer)
	if err != nil {
		return nil, err
	}
	if len(raw) != PayerKeySize {
		return nil, fmt.Errorf("payer key is %d bytes, want %d", len(raw), PayerKeySize)
	}
	return raw, nil
}

// DecodeSignature decodes a base58 signature, enforcing the 64-byte length.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := base58.Decode(sig)
	if err != nil {
		return nil, err
	}
	if len(raw) != SignatureSize {
		return nil, fmt.Errorf("signature is %d bytes, want %d", len(raw), SignatureSize)
	}
	return raw, nil
}
