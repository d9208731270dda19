package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

const notificationColumns = `id, event_type, order_id, payment_id, payload_json, delivery_status, delivery_attempts, delivery_next_at, delivery_last_error, created_at, updated_at`

type NotificationEventRepository struct {
	db DBTX
}

func NewNotificationEventRepository(db DBTX) *NotificationEventRepository {
	return &NotificationEventRepository{db: db}
}

func (r *NotificationEventRepository) CreateTx(ctx context.Context, tx DBTX, event *entity.NotificationEvent) error {
	query := `
		INSERT INTO notification_events (
			event_type, order_id, payment_id, payload_json,
			delivery_status, delivery_attempts, delivery_next_at, delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		event.EventType,
		event.OrderID,
		event.PaymentID,
		event.PayloadJSON,
		event.DeliveryStatus,
		event.DeliveryAttempts,
		nullableTimeValue(event.DeliveryNextAt),
		nullableStringValue(event.DeliveryLastErr),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

func (r *NotificationEventRepository) Create(ctx context.Context, event *entity.NotificationEvent) error {
	return r.CreateTx(ctx, r.db, event)
}

func (r *NotificationEventRepository) ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.NotificationEvent, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notification_events
		WHERE delivery_status = ?
		  AND delivery_next_at IS NOT NULL
		  AND delivery_next_at <= ?
		ORDER BY delivery_next_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.NotificationDeliveryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.NotificationEvent, 0)
	for rows.Next() {
		item := &entity.NotificationEvent{}
		var nextAt sql.NullTime
		var lastErr sql.NullString
		if err := rows.Scan(
			&item.ID,
			&item.EventType,
			&item.OrderID,
			&item.PaymentID,
			&item.PayloadJSON,
			&item.DeliveryStatus,
			&item.DeliveryAttempts,
			&nextAt,
			&lastErr,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.DeliveryNextAt = timePtrFromNull(nextAt)
		item.DeliveryLastErr = stringPtrFromNull(lastErr)
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (r *NotificationEventRepository) Update(ctx context.Context, event *entity.NotificationEvent) error {
	query := `
		UPDATE notification_events SET
			delivery_status = ?,
			delivery_attempts = ?,
			delivery_next_at = ?,
			delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		event.DeliveryStatus,
		event.DeliveryAttempts,
		nullableTimeValue(event.DeliveryNextAt),
		nullableStringValue(event.DeliveryLastErr),
		event.UpdatedAt,
		event.ID,
	)
	return err
}
