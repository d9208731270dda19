package entity

import "time"

const (
	RefundStatusSucceeded = "SUCCEEDED"
	RefundStatusFailed    = "FAILED"
)

type Refund struct {
	ID string

	PaymentID   uint64
	Provider    int32
	AmountCents int64
	Reason      *string

	Status           string
	ProviderRefundID *string

	CreatedAt time.Time
}
