package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

var ErrPaymentNotFound = errors.New("payment not found")

const paymentColumns = `id, order_id, intent_id, provider, amount_cents, refunded_cents, status, transaction_id, created_at, updated_at`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreateTx(ctx context.Context, tx DBTX, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			order_id, intent_id, provider, amount_cents, refunded_cents, status, transaction_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		payment.OrderID,
		payment.IntentID,
		payment.Provider,
		payment.AmountCents,
		payment.RefundedCents,
		payment.Status,
		payment.TransactionID,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.IntentID,
		&payment.Provider,
		&payment.AmountCents,
		&payment.RefundedCents,
		&payment.Status,
		&payment.TransactionID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

// ApplyRefund records refunded cents and the resulting payment status. The
// status guard keeps a concurrent double-refund from applying twice past
// the refundable amount.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, id uint64, refundedCents int64, status string, now time.Time) error {
	query := `
		UPDATE payments SET refunded_cents = ?, status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		refundedCents, status, now, id,
		entity.PaymentStatusCompleted, entity.PaymentStatusRefunded,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
