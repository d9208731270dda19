package entity

import "time"

const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusReturned   = "RETURNED"
	OrderStatusPaid       = "PAID"
)

// Order is owned by the orders service. This service only reads it and moves
// it to PAID on a successful payment; the admin-driven lifecycle below exists
// so the transition guard can tell a legal edge from a terminal state.
type Order struct {
	ID         string
	OrderNo    string
	UserID     *string
	Status     string
	TotalCents int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

var allowedOrderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPaid, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusPaid, OrderStatusCompleted, OrderStatusReturned, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusReturned},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

// CanTransitionOrder reports whether current -> next is a legal order status
// transition.
func CanTransitionOrder(current, next string) bool {
	for _, allowed := range allowedOrderTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderTerminalForPayment reports whether a payment webhook arriving for an
// order in this status should be acknowledged without touching the order.
func OrderTerminalForPayment(status string) bool {
	switch status {
	case OrderStatusCancelled, OrderStatusReturned, OrderStatusCompleted:
		return true
	default:
		return false
	}
}
