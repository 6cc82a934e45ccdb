// Package ledger tracks consumed payment-intent ids. A record only needs
// to live until the intent's own expiry: once expired, the verifier
// rejects the intent anyway, so the ledger's sole job is blocking replay
// inside the valid window.
package ledger

import (
	"context"
	"time"
)

// Ledger is the used-intent store.
//
// Reserve must be atomic: when two callers race on the same id, exactly
// one gets true. Implementations must use a single conditional-insert
// primitive, never a membership check followed by an insert.
type Ledger interface {
	// Reserve marks id as consumed until expiresAt. Returns false when the
	// id is already reserved and still inside its window. A reservation is
	// never rolled back.
	Reserve(ctx context.Context, id string, expiresAt time.Time) (bool, error)

	// IsReserved reports whether id currently holds a live reservation.
	// Non-authoritative: fine for fast-path rejection, never for the
	// admission decision itself.
	IsReserved(ctx context.Context, id string) (bool, error)
}
