package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/honeynil/TicketPurchaseService/internal/handler"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/auth"
	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
)

type ServiceInfo struct {
	Name    string
	Version string
}

func SetupRouter(h *handler.Handler, verifier auth.TokenVerifier, metrics http.Handler, info ServiceInfo) http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware, recoveryMiddleware)

	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler(info)).Methods(http.MethodGet)

	// Защищённые роуты с JWT
	protected := r.NewRoute().Subrouter()
	protected.Use(auth.AuthMiddleware(verifier))
	h.RegisterRoutes(protected)

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(r)
}

func healthHandler(info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"service": info.Name,
			"version": info.Version,
			"status":  "ok",
		})
	}
}

// metricsMiddleware labels requests with the route template so that purchase
// ids do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		// Записываем ответ для получения статуса
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)
		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}

		observability.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(recorder.status)).Inc()
		observability.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// recoveryMiddleware turns a panic into a logged 500 with the generic error body.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic while serving request",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": pkgerrors.ErrInternal.Error()})
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder для захвата статуса ответа
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
