package models

import "time"

// UsedIntent is one consumed payment-intent id. The unique index on Key
// is what makes the Postgres ledger's reserve atomic; rows past ExpiresAt
// are dead and get swept.
type UsedIntent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"size:64;uniqueIndex"` // intent id
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}
