package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/api"
	"github.com/honeynil/TicketPurchaseService/internal/config"
	"github.com/honeynil/TicketPurchaseService/internal/handler"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/auth"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/events"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/kafka"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/rabbitmq"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/redis"
	"github.com/honeynil/TicketPurchaseService/internal/observability"
	core "github.com/honeynil/TicketPurchaseService/internal/repository/postgres"
	service "github.com/honeynil/TicketPurchaseService/internal/services"
)

type publisher interface {
	service.NotificationPublisher
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем логи, метрики, трейсы
	shutdownTracing, metricsHandler := observability.Setup(ctx, cfg.App.Name, cfg.App.LogLevel, cfg.OTLP.Endpoint)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	}()

	// Подключаемся к Postgres
	db, err := core.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.ConnectAttempts, cfg.Postgres.ConnectDelay)
	if err != nil {
		slog.Error("failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := core.Migrate(ctx, db); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	var lookup events.Lookup = events.NewClient(cfg.Events.BaseURL, cfg.Events.LookupTimeout, cfg.Events.ListTimeout)
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			slog.Warn("event cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			lookup = events.NewCachedLookup(lookup, redisClient, cfg.Redis.EventCacheTTL)
		}
	}

	notifier := newPublisher(cfg)
	defer notifier.Close()

	repo := core.NewPostgresPurchaseRepository(db)
	svc := service.NewPurchaseService(repo, lookup, notifier)

	router := api.SetupRouter(
		handler.NewHandler(svc),
		auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Algorithm),
		metricsHandler,
		api.ServiceInfo{Name: cfg.App.Name, Version: cfg.App.Version},
	)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		slog.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}

func newPublisher(cfg *config.Config) publisher {
	switch cfg.Notify.Transport {
	case config.TransportKafka:
		slog.Info("notifications go to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	default:
		slog.Info("notifications go to RabbitMQ", "queue", cfg.RabbitMQ.Queue)
		return rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
	}
}
