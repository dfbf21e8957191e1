package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const transportName = "kafka"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes payment notifications synchronously, keyed by purchase
// id so that messages about one purchase keep their order.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, n models.PaymentNotification) error {
	value, err := json.Marshal(n)
	if err != nil {
		observability.NotificationsPublished.WithLabelValues(transportName, "error").Inc()
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(n.PurchaseID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send Kafka message", "topic", p.topic, "purchase_id", n.PurchaseID, "error", err)
		observability.NotificationsPublished.WithLabelValues(transportName, "error").Inc()
		return fmt.Errorf("%w: %w", pkgerrors.ErrPublishFailed, err)
	}

	slog.Info("Kafka message sent", "topic", p.topic, "purchase_id", n.PurchaseID)
	observability.NotificationsPublished.WithLabelValues(transportName, "success").Inc()
	return nil
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}
