package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

var ErrOrderNotFound = errors.New("order not found")

const orderColumns = `id, order_no, user_id, status, total_cents, created_at, updated_at`

// OrderRepository touches the orders service's table only as far as payment
// reconciliation needs: read an order and move its status.
type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return scanOrderRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *OrderRepository) LockByIDTx(ctx context.Context, tx DBTX, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	return scanOrderRow(tx.QueryRowContext(ctx, query, id))
}

func (r *OrderRepository) UpdateStatusTx(ctx context.Context, tx DBTX, id, status string, now time.Time) error {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, status, now, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanOrderRow(row *sql.Row) (*entity.Order, error) {
	order := &entity.Order{}
	var userID sql.NullString

	err := row.Scan(
		&order.ID,
		&order.OrderNo,
		&userID,
		&order.Status,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	order.UserID = stringPtrFromNull(userID)
	return order, nil
}
