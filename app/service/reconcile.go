package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/provider"
	"github.com/audiotailoc/ms-go-payments/app/repository"
)

// Losing writers of the receipt race re-read the winner's receipt for a
// short window before answering, so both deliveries report the same result.
const (
	receiptPollAttempts = 3
	receiptPollInterval = 50 * time.Millisecond
)

type ReconcileOutcome int

const (
	ReconcileApplied ReconcileOutcome = iota
	ReconcileAlreadyProcessed
	ReconcileRejected
)

type ReconcileResult struct {
	Outcome      ReconcileOutcome
	Reason       error
	IntentID     string
	OrderID      string
	ResultStatus string
}

// ReconcileWebhook applies one provider webhook delivery exactly once.
// Rejections and replays come back in the result so the controller can speak
// each provider's acknowledgement dialect; a non-nil error means persistence
// failed and the provider should retry the delivery.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, providerSlug string, payload []byte) (*ReconcileResult, error) {
	providerClient, err := s.providerReg.GetBySlug(providerSlug)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}
	providerCode := providerClient.Code()

	if !providerClient.VerifyWebhook(payload) {
		s.logger.WithField("provider", providerSlug).Warn("webhook signature rejected")
		return &ReconcileResult{Outcome: ReconcileRejected, Reason: ErrSignatureInvalid}, nil
	}

	event, err := providerClient.ParseWebhook(payload)
	if err != nil {
		return &ReconcileResult{Outcome: ReconcileRejected, Reason: ErrMalformedPayload}, nil
	}

	existing, err := s.receiptRepo.FindByKey(ctx, providerCode, event.ExternalRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replayResult(ctx, event.ExternalRef, existing), nil
	}

	resultStatus := entity.IntentStatusFailed
	if event.Success {
		resultStatus = entity.IntentStatusCompleted
	}

	result := &ReconcileResult{
		Outcome:      ReconcileApplied,
		IntentID:     event.ExternalRef,
		ResultStatus: resultStatus,
	}

	txErr := s.tx.WithinTx(ctx, func(tx repository.DBTX) error {
		now := time.Now().UTC()

		// Insert the receipt first. The unique key on (provider, external_ref)
		// is the arbiter when two deliveries race: exactly one insert commits.
		if err := s.receiptRepo.InsertTx(ctx, tx, &entity.WebhookReceipt{
			Provider:     providerCode,
			ExternalRef:  event.ExternalRef,
			ResultStatus: resultStatus,
			ProcessedAt:  now,
		}); err != nil {
			return err
		}

		intent, err := s.intentRepo.LockByIDTx(ctx, tx, event.ExternalRef)
		if err != nil {
			return err
		}
		if intent == nil {
			return ErrUnknownIntent
		}
		result.OrderID = intent.OrderID

		if entity.IntentTerminal(intent.Status) {
			// Settled by another path (cash on delivery, the expiry job).
			// Commit the receipt anyway so redeliveries short-circuit on the
			// precheck instead of re-running this transaction.
			result.Outcome = ReconcileAlreadyProcessed
			result.ResultStatus = intent.Status
			return nil
		}
		flipped, err := s.intentRepo.MarkTerminalTx(ctx, tx, intent.ID, resultStatus, now)
		if err != nil {
			return err
		}
		if !flipped {
			result.Outcome = ReconcileAlreadyProcessed
			return nil
		}

		if event.AmountCents != intent.AmountCents {
			s.logger.WithFields(logrus.Fields{
				"intent_id":      intent.ID,
				"intent_amount":  intent.AmountCents,
				"webhook_amount": event.AmountCents,
			}).Warn("webhook amount differs from intent amount")
		}

		transactionID := event.TransactionID
		if transactionID == "" {
			transactionID = event.ExternalRef
		}
		payment := &entity.Payment{
			OrderID:       intent.OrderID,
			IntentID:      intent.ID,
			Provider:      providerCode,
			AmountCents:   event.AmountCents,
			Status:        resultStatusToPaymentStatus(resultStatus),
			TransactionID: transactionID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.paymentRepo.CreateTx(ctx, tx, payment); err != nil {
			return err
		}

		if !event.Success {
			// A failed attempt settles the intent but leaves the order alone
			// so the buyer can retry with a fresh intent.
			return nil
		}

		order, err := s.orderRepo.LockByIDTx(ctx, tx, intent.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}

		switch {
		case order.Status == entity.OrderStatusPaid:
			// Order already settled by another path, nothing to move.
		case entity.OrderTerminalForPayment(order.Status) || !entity.CanTransitionOrder(order.Status, entity.OrderStatusPaid):
			s.logger.WithFields(logrus.Fields{
				"intent_id":    intent.ID,
				"order_id":     order.ID,
				"order_status": order.Status,
			}).Warn("payment completed for an order that can no longer be paid")
			result.Outcome = ReconcileAlreadyProcessed
		default:
			if err := s.orderRepo.UpdateStatusTx(ctx, tx, order.ID, entity.OrderStatusPaid, now); err != nil {
				return err
			}
		}

		return s.queueNotificationTx(ctx, tx, "payment_completed", intent.OrderID, payment, now)
	})

	switch {
	case txErr == nil:
		if result.Outcome == ReconcileApplied {
			s.logger.WithFields(logrus.Fields{
				"provider":      providerSlug,
				"intent_id":     result.IntentID,
				"result_status": result.ResultStatus,
			}).Info("webhook reconciled")
		}
		return result, nil
	case errors.Is(txErr, repository.ErrReceiptAlreadyExists):
		return s.awaitWinnerReceipt(ctx, providerCode, event.ExternalRef), nil
	case errors.Is(txErr, ErrUnknownIntent):
		s.logger.WithFields(logrus.Fields{
			"provider":     providerSlug,
			"external_ref": event.ExternalRef,
		}).Warn("webhook for unknown intent")
		return &ReconcileResult{Outcome: ReconcileRejected, Reason: ErrUnknownIntent}, nil
	default:
		return nil, txErr
	}
}

// awaitWinnerReceipt handles the losing side of a duplicate race. The winner
// may still be mid-commit, so poll its receipt briefly before answering.
func (s *PaymentService) awaitWinnerReceipt(ctx context.Context, providerCode int32, externalRef string) *ReconcileResult {
	for attempt := 0; attempt < receiptPollAttempts; attempt++ {
		receipt, err := s.receiptRepo.FindByKey(ctx, providerCode, externalRef)
		if err == nil && receipt != nil {
			return s.replayResult(ctx, externalRef, receipt)
		}

		select {
		case <-ctx.Done():
			return &ReconcileResult{Outcome: ReconcileAlreadyProcessed, IntentID: externalRef}
		case <-time.After(receiptPollInterval):
		}
	}
	return &ReconcileResult{Outcome: ReconcileAlreadyProcessed, IntentID: externalRef}
}

func (s *PaymentService) replayResult(ctx context.Context, externalRef string, receipt *entity.WebhookReceipt) *ReconcileResult {
	result := &ReconcileResult{
		Outcome:      ReconcileAlreadyProcessed,
		IntentID:     externalRef,
		ResultStatus: receipt.ResultStatus,
	}
	if intent, err := s.intentRepo.FindByID(ctx, externalRef); err == nil && intent != nil {
		result.OrderID = intent.OrderID
	}
	return result
}

func resultStatusToPaymentStatus(resultStatus string) string {
	if resultStatus == entity.IntentStatusCompleted {
		return entity.PaymentStatusCompleted
	}
	return entity.PaymentStatusFailed
}
