package entity

import "time"

const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment is the ledger row for a provider transaction that was actually
// observed. It is only ever written by the webhook reconciler (or the COD
// short-circuit), never speculatively at checkout time.
type Payment struct {
	ID uint64

	OrderID  string
	IntentID string
	Provider int32

	AmountCents   int64
	RefundedCents int64

	Status        string
	TransactionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}
