package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultFetchRetryDelay = time.Second

type Consumer struct {
	reader     messageReader
	topic      string
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		topic:      topic,
		retryDelay: defaultFetchRetryDelay,
	}
}

// Consume runs until ctx is cancelled. Offsets are committed after the handler
// runs, including for messages that cannot be decoded or handled, so a poison
// message does not block the partition. It returns nil once the reader is
// closed and waits retryDelay between failed fetches.
func (c *Consumer) Consume(ctx context.Context, h models.NotificationHandler) error {
	slog.Info("consuming notifications", "transport", transportName, "topic", c.topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				slog.Info("Kafka reader closed", "topic", c.topic)
				return nil
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err, "retry_in", c.retryDelay)
			if !sleep(ctx, c.retryDelay) {
				return ctx.Err()
			}
			continue
		}

		c.handle(ctx, msg, h)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, h models.NotificationHandler) {
	var n models.PaymentNotification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		slog.Error("failed to unmarshal notification", "topic", msg.Topic, "key", string(msg.Key), "error", err)
		observability.NotificationsConsumed.WithLabelValues(transportName, "error").Inc()
		return
	}
	if err := h(ctx, n); err != nil {
		// TODO: Send to dead-letter topic
		slog.Error("failed to handle notification", "purchase_id", n.PurchaseID, "error", err)
		observability.NotificationsConsumed.WithLabelValues(transportName, "error").Inc()
		return
	}
	observability.NotificationsConsumed.WithLabelValues(transportName, "success").Inc()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
