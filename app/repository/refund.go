package repository

import (
	"context"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO refunds (
			id, payment_id, provider, amount_cents, reason, status, provider_refund_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		refund.ID,
		refund.PaymentID,
		refund.Provider,
		refund.AmountCents,
		nullableStringValue(refund.Reason),
		refund.Status,
		nullableStringValue(refund.ProviderRefundID),
		refund.CreatedAt,
	)
	return err
}
