package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeynil/TicketPurchaseService/internal/config"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/kafka"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/rabbitmq"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	"github.com/honeynil/TicketPurchaseService/internal/observability"
)

type consumer interface {
	Consume(ctx context.Context, h models.NotificationHandler) error
}

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, _ := observability.Setup(ctx, cfg.App.Name+"-notification-worker", cfg.App.LogLevel, cfg.OTLP.Endpoint)
	defer shutdownTracing(context.Background())

	var c consumer
	switch cfg.Notify.Transport {
	case config.TransportKafka:
		kc := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		defer kc.Close()
		c = kc
	default:
		c = rabbitmq.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
	}

	err = c.Consume(ctx, logNotification)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("notification worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("notification worker stopped")
}

func logNotification(ctx context.Context, n models.PaymentNotification) error {
	slog.Info("payment confirmed",
		"purchase_id", n.PurchaseID,
		"user_id", n.UserID,
		"event_id", n.EventID,
		"quantity", n.Quantity,
		"total", n.Total.String(),
		"payment_method", n.PaymentMethod,
		"payment_timestamp", n.PaymentTimestamp)
	return nil
}
