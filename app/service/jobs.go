package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

type notificationPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// SetNotificationPublisher wires the broker producer used by the dispatch
// job. The serve path never publishes, so it skips this.
func (s *PaymentService) SetNotificationPublisher(publisher notificationPublisher) {
	s.publisher = publisher
}

// RunDispatchNotificationsBatch drains due notification events to the broker.
// Events are the outbox side of reconcile transactions: publishing is retried
// with a fixed backoff until the attempt budget runs out.
func (s *PaymentService) RunDispatchNotificationsBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.eventRepo.ListDue(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, event := range items {
		if event == nil {
			continue
		}
		if err := s.dispatchNotification(ctx, event, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch fails intents that have sat in PENDING past the
// timeout, so abandoned checkouts do not block new intents for the order.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.intentRepo.ListStalePending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, intent := range items {
		if intent == nil {
			continue
		}

		flipped, err := s.intentRepo.MarkTerminal(ctx, intent.ID, entity.IntentStatusFailed, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !flipped {
			// A webhook settled the intent between the list and the update.
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"intent_id": intent.ID,
			"order_id":  intent.OrderID,
		}).Info("pending intent expired")
	}

	return firstErr
}

func (s *PaymentService) dispatchNotification(ctx context.Context, event *entity.NotificationEvent, now time.Time) error {
	if s.publisher == nil {
		return ErrInvalidRequest
	}

	if err := s.publisher.Publish(ctx, event.OrderID, []byte(event.PayloadJSON)); err != nil {
		return s.recordDispatchFailure(ctx, event, now, err)
	}

	event.DeliveryStatus = entity.NotificationDeliverySent
	event.DeliveryNextAt = nil
	event.DeliveryLastErr = nil
	event.UpdatedAt = now

	return s.eventRepo.Update(ctx, event)
}

func (s *PaymentService) recordDispatchFailure(ctx context.Context, event *entity.NotificationEvent, now time.Time, dispatchErr error) error {
	event.DeliveryAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	event.DeliveryLastErr = &trimmed

	maxAttempts := s.paymentsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if event.DeliveryAttempts >= maxAttempts {
		event.DeliveryStatus = entity.NotificationDeliveryFailed
		event.DeliveryNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.NotifyRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		event.DeliveryStatus = entity.NotificationDeliveryPending
		event.DeliveryNextAt = &next
	}
	event.UpdatedAt = now

	if err := s.eventRepo.Update(ctx, event); err != nil {
		return err
	}

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
