package entity

import "time"

// WebhookReceipt records that a webhook for (provider, external ref) already
// produced a terminal outcome. The unique key on that pair is what makes
// concurrent duplicate deliveries collapse to exactly one state transition:
// the receipt is inserted inside the reconcile transaction before any
// mutation, so a losing writer fails the insert and aborts.
type WebhookReceipt struct {
	ID uint64

	Provider    int32
	ExternalRef string

	ResultStatus string
	ProcessedAt  time.Time
}
