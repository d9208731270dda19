package provider

import (
	"context"
	"errors"
)

var (
	ErrProviderNotSupported = errors.New("provider is not supported")
	ErrMalformedPayload     = errors.New("malformed webhook payload")
	ErrRefundUnsupported    = errors.New("refunds are not supported by this provider")
)

type IntentInput struct {
	IntentID    string
	OrderID     string
	OrderNo     string
	AmountCents int64
	ReturnURL   string
}

type IntentOutput struct {
	RedirectURL   *string
	InitialStatus string
}

// WebhookEvent is the canonical view of a provider callback after the
// provider-specific field names have been mapped away.
type WebhookEvent struct {
	ExternalRef   string
	Success       bool
	AmountCents   int64
	TransactionID string
}

type RefundInput struct {
	RefundID      string
	TransactionID string
	AmountCents   int64
	Reason        string
}

type RefundOutput struct {
	Success          bool
	ProviderRefundID *string
}

// Provider translates between canonical payment concepts and one provider's
// wire shape. VerifyWebhook must be called before ParseWebhook; both are
// side-effect free.
type Provider interface {
	Code() int32
	Slug() string
	BuildIntent(ctx context.Context, input *IntentInput) (*IntentOutput, error)
	VerifyWebhook(payload []byte) bool
	ParseWebhook(payload []byte) (*WebhookEvent, error)
	Refund(ctx context.Context, input *RefundInput) (*RefundOutput, error)
}
