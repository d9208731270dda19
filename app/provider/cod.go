package provider

import (
	"context"
	"errors"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

// CodProvider is the cash-on-delivery short circuit: no redirect, the intent
// completes synchronously at creation time and no webhooks ever arrive.
type CodProvider struct{}

func NewCodProvider() *CodProvider {
	return &CodProvider{}
}

func (p *CodProvider) Code() int32 {
	return int32(types.ProviderTypeCod)
}

func (p *CodProvider) Slug() string {
	return "cod"
}

func (p *CodProvider) BuildIntent(_ context.Context, _ *IntentInput) (*IntentOutput, error) {
	return &IntentOutput{
		RedirectURL:   nil,
		InitialStatus: entity.IntentStatusCompleted,
	}, nil
}

func (p *CodProvider) VerifyWebhook(_ []byte) bool {
	return false
}

func (p *CodProvider) ParseWebhook(_ []byte) (*WebhookEvent, error) {
	return nil, errors.New("cod does not deliver webhooks")
}

// Refund is rejected: cash refunds are settled offline, outside this ledger.
func (p *CodProvider) Refund(_ context.Context, _ *RefundInput) (*RefundOutput, error) {
	return nil, ErrRefundUnsupported
}
