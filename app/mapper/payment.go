package mapper

import (
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

func IntentToResponse(item *entity.PaymentIntent) *types.IntentResponse {
	if item == nil {
		return nil
	}

	return &types.IntentResponse{
		IntentId:    item.ID,
		OrderId:     item.OrderID,
		Provider:    types.ProviderType(item.Provider).Slug(),
		Status:      item.Status,
		AmountCents: item.AmountCents,
		RedirectUrl: derefString(item.CheckoutURL),
		CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func RefundToResponse(item *entity.Refund) *types.RefundResponse {
	if item == nil {
		return nil
	}

	return &types.RefundResponse{
		RefundId: item.ID,
		Success:  item.Status == entity.RefundStatusSucceeded,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
