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
	"github.com/audiotailoc/ms-go-payments/app/repository"
	"github.com/audiotailoc/ms-go-payments/app/types"
	"github.com/audiotailoc/ms-go-payments/config"
)

const defaultBatchSize = int32(100)

type paymentIntentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) error
	CreateTx(ctx context.Context, tx repository.DBTX, intent *entity.PaymentIntent) error
	FindByID(ctx context.Context, id string) (*entity.PaymentIntent, error)
	LockByIDTx(ctx context.Context, tx repository.DBTX, id string) (*entity.PaymentIntent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentIntent, error)
	FindPendingByOrder(ctx context.Context, orderID string) (*entity.PaymentIntent, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error)
	MarkTerminalTx(ctx context.Context, tx repository.DBTX, id, status string, now time.Time) (bool, error)
	MarkTerminal(ctx context.Context, id, status string, now time.Time) (bool, error)
}

type paymentRepository interface {
	CreateTx(ctx context.Context, tx repository.DBTX, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	ApplyRefund(ctx context.Context, id uint64, refundedCents int64, status string, now time.Time) error
}

type webhookReceiptRepository interface {
	InsertTx(ctx context.Context, tx repository.DBTX, receipt *entity.WebhookReceipt) error
	FindByKey(ctx context.Context, provider int32, externalRef string) (*entity.WebhookReceipt, error)
}

type orderRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	LockByIDTx(ctx context.Context, tx repository.DBTX, id string) (*entity.Order, error)
	UpdateStatusTx(ctx context.Context, tx repository.DBTX, id, status string, now time.Time) error
}

type notificationEventRepository interface {
	Create(ctx context.Context, event *entity.NotificationEvent) error
	CreateTx(ctx context.Context, tx repository.DBTX, event *entity.NotificationEvent) error
	ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.NotificationEvent, error)
	Update(ctx context.Context, event *entity.NotificationEvent) error
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.Refund) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx repository.DBTX) error) error
}

type PaymentService struct {
	intentRepo  paymentIntentRepository
	paymentRepo paymentRepository
	receiptRepo webhookReceiptRepository
	orderRepo   orderRepository
	eventRepo   notificationEventRepository
	refundRepo  refundRepository
	tx          txRunner
	providerReg *provider.Registry
	paymentsCfg config.PaymentsConfig
	publisher   notificationPublisher
	logger      logrus.FieldLogger
}

func NewPaymentService(
	intentRepo paymentIntentRepository,
	paymentRepo paymentRepository,
	receiptRepo webhookReceiptRepository,
	orderRepo orderRepository,
	eventRepo notificationEventRepository,
	refundRepo refundRepository,
	tx txRunner,
	providerReg *provider.Registry,
	paymentsCfg config.PaymentsConfig,
	logger logrus.FieldLogger,
) *PaymentService {
	return &PaymentService{
		intentRepo:  intentRepo,
		paymentRepo: paymentRepo,
		receiptRepo: receiptRepo,
		orderRepo:   orderRepo,
		eventRepo:   eventRepo,
		refundRepo:  refundRepo,
		tx:          tx,
		providerReg: providerReg,
		paymentsCfg: paymentsCfg,
		logger:      logger,
	}
}

func (s *PaymentService) CreateIntent(ctx context.Context, req *types.CreateIntentRequest) (*entity.PaymentIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	providerType, err := types.ParseProviderType(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	existing, err := s.intentRepo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.OrderID != req.OrderId {
			return nil, fmt.Errorf("%w: idempotency_key already used for another order", ErrInvalidRequest)
		}
		return existing, nil
	}

	order, err := s.orderRepo.FindByID(ctx, req.OrderId)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !entity.CanTransitionOrder(order.Status, entity.OrderStatusPaid) {
		return nil, fmt.Errorf("%w: order %s cannot be paid", ErrInvalidStatus, order.Status)
	}

	pending, err := s.intentRepo.FindPendingByOrder(ctx, req.OrderId)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, ErrIntentPending
	}

	providerClient, err := s.providerReg.Get(int32(providerType))
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	intentID := uuid.NewString()
	output, err := providerClient.BuildIntent(ctx, &provider.IntentInput{
		IntentID:    intentID,
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		AmountCents: order.TotalCents,
		ReturnURL:   req.ReturnUrl,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	intent := &entity.PaymentIntent{
		ID:             intentID,
		OrderID:        order.ID,
		Provider:       int32(providerType),
		AmountCents:    order.TotalCents,
		Status:         output.InitialStatus,
		IdempotencyKey: req.IdempotencyKey,
		ReturnURL:      normalizeOptionalString(req.ReturnUrl),
		CheckoutURL:    output.RedirectURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if intent.Status == entity.IntentStatusCompleted {
		// Cash on delivery settles in one step: the payment exists and the
		// order is payable the moment the intent is accepted.
		if err := s.settleImmediateIntent(ctx, intent, now); err != nil {
			if errors.Is(err, repository.ErrIntentAlreadyExists) {
				return s.resolveIntentRace(ctx, req)
			}
			return nil, err
		}
		return intent, nil
	}

	if err := s.intentRepo.Create(ctx, intent); err != nil {
		switch {
		case errors.Is(err, repository.ErrPendingIntentExists):
			// The unique key on the live-intent slot is the arbiter when two
			// requests with different idempotency keys race: the loser lands
			// here instead of creating a second PENDING intent.
			return nil, ErrIntentPending
		case errors.Is(err, repository.ErrIntentAlreadyExists):
			return s.resolveIntentRace(ctx, req)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"order_id":  intent.OrderID,
		"provider":  providerType.Slug(),
	}).Info("payment intent created")

	return intent, nil
}

func (s *PaymentService) GetIntent(ctx context.Context, id string) (*entity.PaymentIntent, error) {
	intent, err := s.intentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// resolveIntentRace handles losing an idempotency-key insert race: the winner
// holding the same key and order is this request's intent.
func (s *PaymentService) resolveIntentRace(ctx context.Context, req *types.CreateIntentRequest) (*entity.PaymentIntent, error) {
	winner, err := s.intentRepo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil && winner != nil && winner.OrderID == req.OrderId {
		return winner, nil
	}
	return nil, ErrIntentPending
}

func (s *PaymentService) settleImmediateIntent(ctx context.Context, intent *entity.PaymentIntent, now time.Time) error {
	return s.tx.WithinTx(ctx, func(tx repository.DBTX) error {
		if err := s.intentRepo.CreateTx(ctx, tx, intent); err != nil {
			return err
		}

		payment := &entity.Payment{
			OrderID:       intent.OrderID,
			IntentID:      intent.ID,
			Provider:      intent.Provider,
			AmountCents:   intent.AmountCents,
			Status:        entity.PaymentStatusCompleted,
			TransactionID: intent.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.paymentRepo.CreateTx(ctx, tx, payment); err != nil {
			return err
		}

		order, err := s.orderRepo.LockByIDTx(ctx, tx, intent.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if entity.CanTransitionOrder(order.Status, entity.OrderStatusPaid) {
			if err := s.orderRepo.UpdateStatusTx(ctx, tx, order.ID, entity.OrderStatusPaid, now); err != nil {
				return err
			}
		}

		return s.queueNotificationTx(ctx, tx, "payment_completed", intent.OrderID, payment, now)
	})
}

func (s *PaymentService) queueNotificationTx(ctx context.Context, tx repository.DBTX, eventType, orderID string, payment *entity.Payment, now time.Time) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event_type":     eventType,
		"order_id":       orderID,
		"payment_id":     payment.ID,
		"intent_id":      payment.IntentID,
		"provider":       payment.Provider,
		"amount_cents":   payment.AmountCents,
		"payment_status": payment.Status,
		"occurred_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	return s.eventRepo.CreateTx(ctx, tx, &entity.NotificationEvent{
		EventType:      eventType,
		OrderID:        orderID,
		PaymentID:      payment.ID,
		PayloadJSON:    string(payload),
		DeliveryStatus: entity.NotificationDeliveryPending,
		DeliveryNextAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeOptionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
