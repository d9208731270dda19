package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, value)
	return nil
}

func (f *serviceFixture) addDueEvent(orderID string) *entity.NotificationEvent {
	now := time.Now().UTC().Add(-time.Minute)
	event := &entity.NotificationEvent{
		EventType:      "payment_completed",
		OrderID:        orderID,
		PaymentID:      1,
		PayloadJSON:    `{"event_type":"payment_completed"}`,
		DeliveryStatus: entity.NotificationDeliveryPending,
		DeliveryNextAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_ = f.eventRepo.Create(context.Background(), event)
	return event
}

func TestRunDispatchNotificationsBatchPublishesAndMarksSent(t *testing.T) {
	f := newServiceFixture(vnpayStub())
	publisher := &fakePublisher{}
	f.svc.SetNotificationPublisher(publisher)
	event := f.addDueEvent("order-1")

	if err := f.svc.RunDispatchNotificationsBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch failed: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(publisher.published))
	}

	f.eventRepo.mu.Lock()
	defer f.eventRepo.mu.Unlock()
	for _, item := range f.eventRepo.events {
		if item.ID == event.ID && item.DeliveryStatus != entity.NotificationDeliverySent {
			t.Fatalf("expected sent status, got %d", item.DeliveryStatus)
		}
	}
}

func TestRunDispatchNotificationsBatchRecordsFailureWithRetry(t *testing.T) {
	f := newServiceFixture(vnpayStub())
	publisher := &fakePublisher{err: errors.New("broker unreachable")}
	f.svc.SetNotificationPublisher(publisher)
	event := f.addDueEvent("order-1")

	if err := f.svc.RunDispatchNotificationsBatch(context.Background()); err == nil {
		t.Fatal("expected dispatch error")
	}

	f.eventRepo.mu.Lock()
	defer f.eventRepo.mu.Unlock()
	for _, item := range f.eventRepo.events {
		if item.ID != event.ID {
			continue
		}
		if item.DeliveryStatus != entity.NotificationDeliveryPending {
			t.Fatalf("expected still pending for retry, got %d", item.DeliveryStatus)
		}
		if item.DeliveryAttempts != 1 {
			t.Fatalf("expected one attempt recorded, got %d", item.DeliveryAttempts)
		}
		if item.DeliveryNextAt == nil || !item.DeliveryNextAt.After(time.Now().UTC().Add(-time.Second)) {
			t.Fatal("expected retry scheduled in the future")
		}
		if item.DeliveryLastErr == nil || *item.DeliveryLastErr == "" {
			t.Fatal("expected last error recorded")
		}
	}
}

func TestRunExpirePendingBatchFailsStaleIntents(t *testing.T) {
	p := vnpayStub()
	f := newServiceFixture(p)
	f.addPendingIntent("stale-1", "order-1", p.code, 1000)
	f.intentRepo.intents["stale-1"].CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	f.addPendingIntent("fresh-1", "order-2", p.code, 1000)

	if err := f.svc.RunExpirePendingBatch(context.Background()); err != nil {
		t.Fatalf("expire batch failed: %v", err)
	}

	stale, _ := f.intentRepo.FindByID(context.Background(), "stale-1")
	if stale.Status != entity.IntentStatusFailed {
		t.Fatalf("expected stale intent failed, got %s", stale.Status)
	}
	fresh, _ := f.intentRepo.FindByID(context.Background(), "fresh-1")
	if fresh.Status != entity.IntentStatusPending {
		t.Fatalf("expected fresh intent untouched, got %s", fresh.Status)
	}
}
