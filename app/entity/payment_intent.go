package entity

import "time"

const (
	IntentStatusPending   = "PENDING"
	IntentStatusCompleted = "COMPLETED"
	IntentStatusFailed    = "FAILED"
)

// PaymentIntent is the provider-facing transaction reference for an order
// checkout. Its ID is what VNPAY/MOMO/PAYOS echo back as the webhook
// transaction reference.
type PaymentIntent struct {
	ID string

	OrderID        string
	Provider       int32
	AmountCents    int64
	Status         string
	IdempotencyKey string
	ReturnURL      *string
	CheckoutURL    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IntentTerminal reports whether an intent status can no longer change.
func IntentTerminal(status string) bool {
	switch status {
	case IntentStatusCompleted, IntentStatusFailed:
		return true
	default:
		return false
	}
}
