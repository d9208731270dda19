package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

var (
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentAlreadyExists = errors.New("payment intent already exists")
	ErrPendingIntentExists = errors.New("order already has a pending payment intent")
)

const pendingOrderUniqueKey = "uq_payment_intents_pending_order"

const intentColumns = `id, order_id, provider, amount_cents, status, idempotency_key, return_url, checkout_url, created_at, updated_at`

type PaymentIntentRepository struct {
	db DBTX
}

func NewPaymentIntentRepository(db DBTX) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

func (r *PaymentIntentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	return r.CreateTx(ctx, r.db, intent)
}

func (r *PaymentIntentRepository) CreateTx(ctx context.Context, tx DBTX, intent *entity.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			id, order_id, provider, amount_cents, status, idempotency_key, return_url, checkout_url, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		intent.ID,
		intent.OrderID,
		intent.Provider,
		intent.AmountCents,
		intent.Status,
		intent.IdempotencyKey,
		nullableStringValue(intent.ReturnURL),
		nullableStringValue(intent.CheckoutURL),
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		// The generated pending_order_id column carries a unique key, so a
		// second PENDING insert for the same order fails here no matter how
		// the callers interleave.
		if isDuplicateEntryOnKey(err, pendingOrderUniqueKey) {
			return ErrPendingIntentExists
		}
		if isDuplicateEntryError(err) {
			return ErrIntentAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PaymentIntentRepository) FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = ?`
	return scanIntentRow(r.db.QueryRowContext(ctx, query, id))
}

// LockByIDTx fetches the intent with a row lock so concurrent reconcile
// transactions for the same reference serialize on it.
func (r *PaymentIntentRepository) LockByIDTx(ctx context.Context, tx DBTX, id string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = ? FOR UPDATE`
	return scanIntentRow(tx.QueryRowContext(ctx, query, id))
}

func (r *PaymentIntentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE idempotency_key = ? LIMIT 1`
	return scanIntentRow(r.db.QueryRowContext(ctx, query, key))
}

func (r *PaymentIntentRepository) FindPendingByOrder(ctx context.Context, orderID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE order_id = ? AND status = ? LIMIT 1`
	return scanIntentRow(r.db.QueryRowContext(ctx, query, orderID, entity.IntentStatusPending))
}

func (r *PaymentIntentRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM payment_intents
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.IntentStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]*entity.PaymentIntent, 0)
	for rows.Next() {
		item := &entity.PaymentIntent{}
		if err := scanIntent(rows, item); err != nil {
			return nil, err
		}
		intents = append(intents, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return intents, nil
}

// MarkTerminalTx flips a PENDING intent to a terminal status. The status
// guard in the WHERE clause is what makes intent status monotonic: a second
// writer affects zero rows and learns it lost.
func (r *PaymentIntentRepository) MarkTerminalTx(ctx context.Context, tx DBTX, id, status string, now time.Time) (bool, error) {
	query := `UPDATE payment_intents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, query, status, now, id, entity.IntentStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentIntentRepository) MarkTerminal(ctx context.Context, id, status string, now time.Time) (bool, error) {
	return r.MarkTerminalTx(ctx, r.db, id, status, now)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(scan rowScanner, intent *entity.PaymentIntent) error {
	var returnURL sql.NullString
	var checkoutURL sql.NullString

	err := scan.Scan(
		&intent.ID,
		&intent.OrderID,
		&intent.Provider,
		&intent.AmountCents,
		&intent.Status,
		&intent.IdempotencyKey,
		&returnURL,
		&checkoutURL,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return err
	}

	intent.ReturnURL = stringPtrFromNull(returnURL)
	intent.CheckoutURL = stringPtrFromNull(checkoutURL)
	return nil
}

func scanIntentRow(row *sql.Row) (*entity.PaymentIntent, error) {
	intent := &entity.PaymentIntent{}
	if err := scanIntent(row, intent); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return intent, nil
}
