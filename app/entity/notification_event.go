package entity

import "time"

const (
	NotificationDeliveryPending int32 = 1
	NotificationDeliverySent    int32 = 10
	NotificationDeliveryFailed  int32 = 20
)

// NotificationEvent is an outbox row describing a payment outcome that the
// notifications service should learn about. It is written in the same
// transaction as the payment mutation and published to Kafka by the
// dispatch job, so a crash can never lose the event or invent one.
type NotificationEvent struct {
	ID uint64

	EventType   string
	OrderID     string
	PaymentID   uint64
	PayloadJSON string

	DeliveryStatus   int32
	DeliveryAttempts int32
	DeliveryNextAt   *time.Time
	DeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
