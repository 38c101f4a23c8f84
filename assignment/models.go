package assignment

import (
	"time"

	"pedraum/pricing"
)

// Status is the per-supplier delivery state of a demand.
//
//	sent --unlock--> unlocked
//	sent --cancel--> canceled
//	canceled --reactivate--> sent
//
// unlocked never moves back; it can only be deleted.
type Status string

const (
	StatusSent     Status = "sent"
	StatusUnlocked Status = "unlocked"
	StatusCanceled Status = "canceled"
)

// Assignment links one demand to one supplier. The (DemandID, SupplierID)
// pair is the identity; a pair can never hold two assignments.
type Assignment struct {
	DemandID   string
	SupplierID string
	Status     Status

	AmountCents int64
	Currency    string
	Cap         *int // unlock cap copied from the demand at send time
	Exclusive   bool
	SoldCount   int

	PaymentStatus pricing.PaymentStatus
	BillingType   pricing.BillingType
	Notes         string

	UnlockedByAdmin bool
	UnlockedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
