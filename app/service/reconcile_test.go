package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/audiotailoc/ms-go-payments/app/entity"
	"github.com/audiotailoc/ms-go-payments/app/provider"
	"github.com/audiotailoc/ms-go-payments/app/types"
)

func (f *serviceFixture) addPendingIntent(id, orderID string, providerCode int32, amountCents int64) {
	now := time.Now().UTC()
	f.intentRepo.intents[id] = &entity.PaymentIntent{
		ID:             id,
		OrderID:        orderID,
		Provider:       providerCode,
		AmountCents:    amountCents,
		Status:         entity.IntentStatusPending,
		IdempotencyKey: "idem-" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestReconcileWebhookSuccessMarksOrderPaid(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{
		ExternalRef:   "intent-1",
		Success:       true,
		AmountCents:   1_500_000,
		TransactionID: "vnp-123",
	}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1_500_000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1_500_000)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileApplied {
		t.Fatalf("expected applied outcome, got %d", result.Outcome)
	}

	intent, _ := f.intentRepo.FindByID(context.Background(), "intent-1")
	if intent.Status != entity.IntentStatusCompleted {
		t.Fatalf("expected completed intent, got %s", intent.Status)
	}
	order, _ := f.orderRepo.FindByID(context.Background(), "order-1")
	if order.Status != entity.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}
	if len(f.paymentRepo.payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(f.paymentRepo.payments))
	}
	payment := f.paymentRepo.payments[1]
	if payment.AmountCents != 1_500_000 {
		t.Fatalf("expected webhook amount on payment, got %d", payment.AmountCents)
	}
	if payment.TransactionID != "vnp-123" {
		t.Fatalf("expected provider transaction id, got %s", payment.TransactionID)
	}
	receipt, _ := f.receiptRepo.FindByKey(context.Background(), p.code, "intent-1")
	if receipt == nil {
		t.Fatal("expected webhook receipt")
	}
	if len(f.eventRepo.events) != 1 {
		t.Fatalf("expected one notification event, got %d", len(f.eventRepo.events))
	}
}

func TestReconcileWebhookFailureLeavesOrderUntouched(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: false, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileApplied {
		t.Fatalf("expected applied outcome, got %d", result.Outcome)
	}

	intent, _ := f.intentRepo.FindByID(context.Background(), "intent-1")
	if intent.Status != entity.IntentStatusFailed {
		t.Fatalf("expected failed intent, got %s", intent.Status)
	}
	order, _ := f.orderRepo.FindByID(context.Background(), "order-1")
	if order.Status != entity.OrderStatusPending {
		t.Fatalf("expected order left pending, got %s", order.Status)
	}
	if len(f.eventRepo.events) != 0 {
		t.Fatalf("expected no notification for failed payment, got %d", len(f.eventRepo.events))
	}
}

func TestReconcileWebhookInvalidSignatureRejected(t *testing.T) {
	p := vnpayStub()
	p.verifyOK = false
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileRejected || !errors.Is(result.Reason, ErrSignatureInvalid) {
		t.Fatalf("expected signature rejection, got outcome=%d reason=%v", result.Outcome, result.Reason)
	}

	intent, _ := f.intentRepo.FindByID(context.Background(), "intent-1")
	if intent.Status != entity.IntentStatusPending {
		t.Fatalf("expected intent untouched, got %s", intent.Status)
	}
	receipt, _ := f.receiptRepo.FindByKey(context.Background(), p.code, "intent-1")
	if receipt != nil {
		t.Fatal("expected no receipt for rejected webhook")
	}
}

func TestReconcileWebhookMalformedPayloadRejected(t *testing.T) {
	p := vnpayStub()
	p.parseErr = provider.ErrMalformedPayload
	f := newServiceFixture(p)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`not json`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileRejected || !errors.Is(result.Reason, ErrMalformedPayload) {
		t.Fatalf("expected malformed rejection, got outcome=%d reason=%v", result.Outcome, result.Reason)
	}
}

func TestReconcileWebhookUnknownIntentRejected(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "nope", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileRejected || !errors.Is(result.Reason, ErrUnknownIntent) {
		t.Fatalf("expected unknown intent rejection, got outcome=%d reason=%v", result.Outcome, result.Reason)
	}
	receipt, _ := f.receiptRepo.FindByKey(context.Background(), p.code, "nope")
	if receipt != nil {
		t.Fatal("expected no receipt for unknown intent")
	}
}

func TestReconcileWebhookDuplicateIsAlreadyProcessed(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	if _, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`)); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileAlreadyProcessed {
		t.Fatalf("expected already processed, got %d", result.Outcome)
	}
	if result.ResultStatus != entity.IntentStatusCompleted {
		t.Fatalf("expected replay to carry the original result, got %s", result.ResultStatus)
	}
	if len(f.paymentRepo.payments) != 1 {
		t.Fatalf("expected single payment, got %d", len(f.paymentRepo.payments))
	}
}

func TestReconcileWebhookConcurrentDuplicatesApplyOnce(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	const deliveries = 8
	results := make([]*ReconcileResult, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < deliveries; i++ {
		if errs[i] != nil {
			t.Fatalf("delivery %d failed: %v", i, errs[i])
		}
		if results[i].Outcome == ReconcileApplied {
			applied++
		} else if results[i].Outcome != ReconcileAlreadyProcessed {
			t.Fatalf("delivery %d unexpected outcome %d", i, results[i].Outcome)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d", applied)
	}
	if len(f.paymentRepo.payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(f.paymentRepo.payments))
	}
	intent, _ := f.intentRepo.FindByID(context.Background(), "intent-1")
	if intent.Status != entity.IntentStatusCompleted {
		t.Fatalf("expected completed intent, got %s", intent.Status)
	}
}

func TestReconcileWebhookCompletedOrderIsAcknowledgedWithoutTransition(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusCompleted, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileAlreadyProcessed {
		t.Fatalf("expected already processed for terminal order, got %d", result.Outcome)
	}

	order, _ := f.orderRepo.FindByID(context.Background(), "order-1")
	if order.Status != entity.OrderStatusCompleted {
		t.Fatalf("expected order untouched, got %s", order.Status)
	}
	intent, _ := f.intentRepo.FindByID(context.Background(), "intent-1")
	if intent.Status != entity.IntentStatusCompleted {
		t.Fatalf("expected intent settled, got %s", intent.Status)
	}
}

func TestReconcileWebhookTerminalIntentKeepsReceipt(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 1000}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)
	f.intentRepo.intents["intent-1"].Status = entity.IntentStatusFailed

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileAlreadyProcessed {
		t.Fatalf("expected already processed for settled intent, got %d", result.Outcome)
	}
	if result.ResultStatus != entity.IntentStatusFailed {
		t.Fatalf("expected the settled status, got %s", result.ResultStatus)
	}
	if len(f.paymentRepo.payments) != 0 {
		t.Fatalf("expected no payment row, got %d", len(f.paymentRepo.payments))
	}
	order, _ := f.orderRepo.FindByID(context.Background(), "order-1")
	if order.Status != entity.OrderStatusPending {
		t.Fatalf("expected order untouched, got %s", order.Status)
	}

	// The receipt survives the short-circuit, so the redelivery never reaches
	// the transaction again.
	receipt, _ := f.receiptRepo.FindByKey(context.Background(), p.code, "intent-1")
	if receipt == nil {
		t.Fatal("expected receipt to be committed for the settled intent")
	}
	result, err = f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if result.Outcome != ReconcileAlreadyProcessed {
		t.Fatalf("expected already processed redelivery, got %d", result.Outcome)
	}
}

func TestReconcileWebhookAmountMismatchWarns(t *testing.T) {
	p := vnpayStub()
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: true, AmountCents: 900}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 1000)
	f.addPendingIntent("intent-1", "order-1", p.code, 1000)

	logger, hook := logrustest.NewNullLogger()
	f.svc.logger = logger

	result, err := f.svc.ReconcileWebhook(context.Background(), "vnpay", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Outcome != ReconcileApplied {
		t.Fatalf("expected applied outcome, got %d", result.Outcome)
	}
	payment := f.paymentRepo.payments[1]
	if payment.AmountCents != 900 {
		t.Fatalf("expected webhook amount recorded, got %d", payment.AmountCents)
	}

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "webhook amount differs from intent amount" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected a warning for the diverging amount")
	}
}

func TestReconcileWebhookUnsupportedProvider(t *testing.T) {
	f := newServiceFixture(vnpayStub())

	_, err := f.svc.ReconcileWebhook(context.Background(), "stripe", []byte(`{}`))
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestReconcileWebhookMomoResultStatusFollowsEvent(t *testing.T) {
	p := &stubProvider{code: int32(types.ProviderTypeMomo), slug: "momo", verifyOK: true}
	p.event = &provider.WebhookEvent{ExternalRef: "intent-1", Success: false, AmountCents: 2000, TransactionID: "momo-9"}
	f := newServiceFixture(p)
	f.addOrder("order-1", entity.OrderStatusPending, 2000)
	f.addPendingIntent("intent-1", "order-1", p.code, 2000)

	result, err := f.svc.ReconcileWebhook(context.Background(), "momo", []byte(`{}`))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.ResultStatus != entity.IntentStatusFailed {
		t.Fatalf("expected failed result status, got %s", result.ResultStatus)
	}
	payment := f.paymentRepo.payments[1]
	if payment.Status != entity.PaymentStatusFailed {
		t.Fatalf("expected failed payment row, got %s", payment.Status)
	}
}
