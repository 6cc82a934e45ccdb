package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job is a compute job accepted past the payment gate. Execution happens
// on the out-of-tree scheduler; this row tracks the submission and its
// paid authorization.
type Job struct {
	ID           string         `json:"jobId" gorm:"primaryKey;size:128"`
	JobType      string         `json:"jobType" gorm:"size:64;index"`
	Status       string         `json:"status" gorm:"size:20;index"`
	PayerAddress string         `json:"payer" gorm:"size:64;index"`
	IntentID     string         `json:"intentId" gorm:"size:64;uniqueIndex"`
	AmountPaid   int64          `json:"amountPaid"`
	Config       datatypes.JSON `json:"config" gorm:"type:jsonb"`
	Result       datatypes.JSON `json:"result,omitempty" gorm:"type:jsonb"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
