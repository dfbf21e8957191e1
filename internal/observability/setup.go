package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup configures logs and traces for a process and returns the tracer
// shutdown hook together with the metrics handler.
func Setup(ctx context.Context, serviceName, logLevel, otlpEndpoint string) (func(context.Context) error, http.Handler) {
	observability.InitLogger(logLevel)
	tracerShutdown := observability.InitTracing(ctx, serviceName, otlpEndpoint)
	return tracerShutdown, promhttp.Handler()
}
