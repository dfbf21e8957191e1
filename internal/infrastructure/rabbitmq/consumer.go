package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	url   string
	queue string
}

func NewConsumer(url, queue string) *Consumer {
	return &Consumer{url: url, queue: queue}
}

// Consume reconnects until ctx is cancelled and hands every delivery to h.
func (c *Consumer) Consume(ctx context.Context, h models.NotificationHandler) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			slog.Error("failed to dial RabbitMQ", "queue", c.queue, "retry_in", backoff, "error", err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn, h)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("RabbitMQ consume loop ended, reconnecting", "queue", c.queue, "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, h models.NotificationHandler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.Warn("failed to set RabbitMQ QoS", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	slog.Info("consuming notifications", "transport", transportName, "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			handleDelivery(ctx, d, h)
		}
	}
}

// handleDelivery acks processed messages and rejects bad ones without
// requeueing them.
func handleDelivery(ctx context.Context, d amqp.Delivery, h models.NotificationHandler) {
	var n models.PaymentNotification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		slog.Error("failed to unmarshal notification", "message_id", d.MessageId, "error", err)
		observability.NotificationsConsumed.WithLabelValues(transportName, "error").Inc()
		d.Nack(false, false)
		return
	}
	if err := h(ctx, n); err != nil {
		slog.Error("failed to handle notification", "purchase_id", n.PurchaseID, "error", err)
		observability.NotificationsConsumed.WithLabelValues(transportName, "error").Inc()
		d.Nack(false, false)
		return
	}
	observability.NotificationsConsumed.WithLabelValues(transportName, "success").Inc()
	d.Ack(false)
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
