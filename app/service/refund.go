package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/provider"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

// CreateRefund pushes a refund to the provider first and records the attempt
// either way, so a provider-side success is never lost to a local failure.
func (s *PaymentService) CreateRefund(ctx context.Context, req *types.CreateRefundRequest) (*entity.Refund, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	payment, err := s.paymentRepo.FindByID(ctx, req.PaymentId)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != entity.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be refunded", ErrInvalidStatus)
	}

	refundable := payment.AmountCents - payment.RefundedCents
	amount := req.AmountCents
	if amount == 0 {
		amount = refundable
	}
	if amount <= 0 || amount > refundable {
		return nil, fmt.Errorf("%w: refund amount must be between 1 and %d", ErrInvalidRequest, refundable)
	}

	providerClient, err := s.providerReg.Get(payment.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	refundID := uuid.NewString()
	output, err := providerClient.Refund(ctx, &provider.RefundInput{
		RefundID:      refundID,
		TransactionID: payment.TransactionID,
		AmountCents:   amount,
		Reason:        req.Reason,
	})
	if err != nil {
		if errors.Is(err, provider.ErrRefundUnsupported) {
			return nil, ErrRefundUnsupported
		}
		return nil, err
	}

	now := time.Now().UTC()
	refund := &entity.Refund{
		ID:               refundID,
		PaymentID:        payment.ID,
		Provider:         payment.Provider,
		AmountCents:      amount,
		Reason:           normalizeOptionalString(req.Reason),
		ProviderRefundID: output.ProviderRefundID,
		CreatedAt:        now,
	}
	if output.Success {
		refund.Status = entity.RefundStatusSucceeded
	} else {
		refund.Status = entity.RefundStatusFailed
	}

	if err := s.refundRepo.Create(ctx, refund); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"refund_id":  refund.ID,
			"payment_id": payment.ID,
		}).Error("refund accepted by provider but not recorded")
		return nil, err
	}

	if !output.Success {
		return refund, ErrRefundRejected
	}

	refundedCents := payment.RefundedCents + amount
	status := entity.PaymentStatusCompleted
	if refundedCents >= payment.AmountCents {
		status = entity.PaymentStatusRefunded
	}
	if err := s.paymentRepo.ApplyRefund(ctx, payment.ID, refundedCents, status, now); err != nil {
		return nil, err
	}

	payment.RefundedCents = refundedCents
	payment.Status = status
	if err := s.queueRefundNotification(ctx, payment, refund, now); err != nil {
		s.logger.WithError(err).WithField("refund_id", refund.ID).Warn("refund notification not queued")
	}

	s.logger.WithFields(logrus.Fields{
		"refund_id":    refund.ID,
		"payment_id":   payment.ID,
		"amount_cents": amount,
	}).Info("refund applied")

	return refund, nil
}

func (s *PaymentService) queueRefundNotification(ctx context.Context, payment *entity.Payment, refund *entity.Refund, now time.Time) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event_type":     "payment_refunded",
		"order_id":       payment.OrderID,
		"payment_id":     payment.ID,
		"refund_id":      refund.ID,
		"amount_cents":   refund.AmountCents,
		"refunded_cents": payment.RefundedCents,
		"payment_status": payment.Status,
		"occurred_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return s.eventRepo.Create(ctx, &entity.NotificationEvent{
		EventType:      "payment_refunded",
		OrderID:        payment.OrderID,
		PaymentID:      payment.ID,
		PayloadJSON:    string(payload),
		DeliveryStatus: entity.NotificationDeliveryPending,
		DeliveryNextAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
