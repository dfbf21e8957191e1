package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// Lookup reads the events catalog. It never fails: every problem degrades to
// an absent event or an empty list.
type Lookup interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, bool)
	ListEvents(ctx context.Context) []models.Event
}

// maxBody caps how much of a response the client will read.
const maxBody = 4 << 20

type Client struct {
	baseURL       string
	httpClient    *http.Client
	lookupTimeout time.Duration
	listTimeout   time.Duration
}

func NewClient(baseURL string, lookupTimeout, listTimeout time.Duration) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		lookupTimeout: lookupTimeout,
		listTimeout:   listTimeout,
	}
}

func (c *Client) GetEvent(ctx context.Context, id int64) (*models.Event, bool) {
	tracer := otel.Tracer("events-client")
	ctx, span := tracer.Start(ctx, "GetEvent")
	span.SetAttributes(attribute.Int64("event_id", id))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/events/%d", c.baseURL, id)
	status, body, err := c.get(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("failed to fetch event", "event_id", id, "url", url, "error", err)
		observability.EventLookups.WithLabelValues("get", "error").Inc()
		return nil, false
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		slog.Warn("event not found", "event_id", id)
		observability.EventLookups.WithLabelValues("get", "not_found").Inc()
		return nil, false
	default:
		span.SetStatus(codes.Error, "unexpected status")
		slog.Error("unexpected events service status", "event_id", id, "status", status)
		observability.EventLookups.WithLabelValues("get", "error").Inc()
		return nil, false
	}

	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		span.RecordError(err)
		slog.Error("failed to decode event", "event_id", id, "error", err)
		observability.EventLookups.WithLabelValues("get", "error").Inc()
		return nil, false
	}
	if event.ID == 0 {
		slog.Warn("events service returned an empty event", "event_id", id, "body", string(body))
		observability.EventLookups.WithLabelValues("get", "not_found").Inc()
		return nil, false
	}

	observability.EventLookups.WithLabelValues("get", "found").Inc()
	return &event, true
}

func (c *Client) ListEvents(ctx context.Context) []models.Event {
	tracer := otel.Tracer("events-client")
	ctx, span := tracer.Start(ctx, "ListEvents")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	url := c.baseURL + "/events"
	status, body, err := c.get(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("failed to list events", "url", url, "error", err)
		observability.EventLookups.WithLabelValues("list", "error").Inc()
		return []models.Event{}
	}
	if status != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status")
		slog.Error("unexpected events service status", "operation", "list", "status", status)
		observability.EventLookups.WithLabelValues("list", "error").Inc()
		return []models.Event{}
	}

	events, err := decodeEventList(body)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to decode event list", "error", err)
		observability.EventLookups.WithLabelValues("list", "error").Inc()
		return []models.Event{}
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	observability.EventLookups.WithLabelValues("list", "found").Inc()
	return events
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// decodeEventList accepts a bare array or an {"events": [...]} envelope.
func decodeEventList(body []byte) ([]models.Event, error) {
	trimmed := bytes.TrimSpace(body)
	events := make([]models.Event, 0)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var envelope struct {
		Events []models.Event `json:"events"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Events != nil {
		events = envelope.Events
	}
	return events, nil
}
