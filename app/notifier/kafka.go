package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/audiotailoc/ms-go-payments/app/factory"
)

// KafkaNotifier publishes notification events to the order-facing topic.
// Writes are synchronous: the dispatch job needs the error to drive its
// retry bookkeeping.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger logrus.FieldLogger
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	logger := factory.NewModuleLogger("payments-notifier")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Errorf(msg, args...) }),
	}

	return &KafkaNotifier{writer: writer, logger: logger}
}

func (n *KafkaNotifier) Publish(ctx context.Context, key string, value []byte) error {
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
