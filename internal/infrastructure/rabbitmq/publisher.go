package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const transportName = "rabbitmq"

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type dialFunc func(url string) (connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Publisher sends payment notifications to a durable queue on the default
// exchange. The connection is opened on first use and dropped after any
// failure so the next call reconnects.
type Publisher struct {
	url   string
	queue string
	dial  dialFunc

	mu   sync.Mutex
	conn connection
	ch   channel
}

func NewPublisher(url, queue string) *Publisher {
	return &Publisher{url: url, queue: queue, dial: dialAMQP}
}

func (p *Publisher) Publish(ctx context.Context, n models.PaymentNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		observability.NotificationsPublished.WithLabelValues(transportName, "error").Inc()
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		p.resetLocked()
		slog.Error("failed to open RabbitMQ channel", "queue", p.queue, "error", err)
		observability.NotificationsPublished.WithLabelValues(transportName, "error").Inc()
		return fmt.Errorf("%w: %w", pkgerrors.ErrPublishFailed, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(n.PurchaseID, 10),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		slog.Error("failed to publish RabbitMQ message", "queue", p.queue, "purchase_id", n.PurchaseID, "error", err)
		observability.NotificationsPublished.WithLabelValues(transportName, "error").Inc()
		return fmt.Errorf("%w: %w", pkgerrors.ErrPublishFailed, err)
	}

	slog.Info("RabbitMQ message published", "queue", p.queue, "purchase_id", n.PurchaseID)
	observability.NotificationsPublished.WithLabelValues(transportName, "success").Inc()
	return nil
}

func (p *Publisher) channelLocked() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	if p.conn == nil {
		conn, err := p.dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	slog.Info("RabbitMQ publisher closed")
	return nil
}
