package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	EventLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_lookups_total",
			Help: "Calls to the events service by operation and result",
		},
		[]string{"operation", "result"},
	)

	EventCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_cache_total",
			Help: "Event snapshot cache lookups by result",
		},
		[]string{"result"},
	)

	NotificationsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Payment notifications by transport and status",
		},
		[]string{"transport", "status"},
	)

	NotificationsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_consumed_total",
			Help: "Payment notifications handled by the worker",
		},
		[]string{"transport", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RepositoryCalls,
		RepositoryDuration,
		RequestCounter,
		RequestDuration,
		EventLookups,
		EventCache,
		NotificationsPublished,
		NotificationsConsumed,
	)
}
