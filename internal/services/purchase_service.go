package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/events"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	"github.com/honeynil/TicketPurchaseService/internal/repository"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	minQuantity         = 1
	maxQuantity         = 100
	minPaymentMethodLen = 3
	maxPaymentMethodLen = 50

	defaultNotifyTimeout = 5 * time.Second
)

var errAlreadyCancelled = fmt.Errorf("%w: purchase already cancelled", pkgerrors.ErrConflict)

type NotificationPublisher interface {
	Publish(ctx context.Context, n models.PaymentNotification) error
}

// NotificationObserver is called after every notification attempt with the
// publish error, or nil on success.
type NotificationObserver func(n models.PaymentNotification, err error)

type PurchaseService interface {
	ListEvents(ctx context.Context) []models.Event
	CreatePurchase(ctx context.Context, userID string, eventID int64, quantity int) (*models.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*models.Purchase, error)
	ListUserPurchases(ctx context.Context, userID string) ([]models.PurchaseDetail, error)
	ConfirmPayment(ctx context.Context, userID string, id int64, paymentMethod string) (*models.Purchase, error)
	CancelPurchase(ctx context.Context, userID string, id int64) (*models.Purchase, error)
}

type Option func(*purchaseService)

func WithNotificationObserver(o NotificationObserver) Option {
	return func(s *purchaseService) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *purchaseService) { s.now = now }
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *purchaseService) { s.notifyTimeout = d }
}

type purchaseService struct {
	repo          repository.PurchaseRepository
	lookup        events.Lookup
	publisher     NotificationPublisher
	observer      NotificationObserver
	now           func() time.Time
	notifyTimeout time.Duration
}

func NewPurchaseService(
	repo repository.PurchaseRepository,
	lookup events.Lookup,
	publisher NotificationPublisher,
	opts ...Option,
) *purchaseService {
	s := &purchaseService{
		repo:          repo,
		lookup:        lookup,
		publisher:     publisher,
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func recordError(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

func (s *purchaseService) ListEvents(ctx context.Context) []models.Event {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "ListEvents")
	defer span.End()

	return s.lookup.ListEvents(ctx)
}

func (s *purchaseService) CreatePurchase(ctx context.Context, userID string, eventID int64, quantity int) (*models.Purchase, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "CreatePurchase")
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int64("event_id", eventID),
		attribute.Int("quantity", quantity),
	)
	defer span.End()

	if eventID <= 0 {
		span.SetStatus(codes.Error, "invalid event id")
		return nil, pkgerrors.ErrInvalidEventID
	}
	if quantity < minQuantity || quantity > maxQuantity {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, pkgerrors.ErrInvalidQuantity
	}

	event, ok := s.lookup.GetEvent(ctx, eventID)
	if !ok {
		span.SetStatus(codes.Error, "event not found")
		slog.Warn("purchase rejected: event not found", "user_id", userID, "event_id", eventID)
		return nil, pkgerrors.ErrEventNotFound
	}
	if quantity > event.Capacity {
		span.SetStatus(codes.Error, "insufficient capacity")
		slog.Warn("purchase rejected: insufficient capacity",
			"user_id", userID,
			"event_id", eventID,
			"quantity", quantity,
			"capacity", event.Capacity)
		return nil, pkgerrors.ErrInsufficientCapacity
	}

	unitPrice := models.NewMoney(event.Price)
	purchase := &models.Purchase{
		UserID:    userID,
		EventID:   eventID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Total:     unitPrice.Times(quantity),
		Status:    models.StatusPending,
	}

	id, err := s.repo.Create(ctx, purchase)
	if err != nil {
		recordError(span, err, "purchase creation failed")
		return nil, err
	}

	created, err := s.repo.GetByID(ctx, id)
	if err != nil {
		recordError(span, err, "purchase re-read failed")
		return nil, err
	}

	slog.Info("purchase created successfully",
		"purchase_id", created.ID,
		"user_id", userID,
		"event_id", eventID,
		"total", created.Total.String())
	return created, nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, id int64) (*models.Purchase, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "GetPurchase")
	span.SetAttributes(attribute.Int64("purchase_id", id))
	defer span.End()

	purchase, err := s.repo.GetByID(ctx, id)
	if err != nil {
		recordError(span, err, "purchase lookup failed")
		return nil, err
	}
	return purchase, nil
}

func (s *purchaseService) ListUserPurchases(ctx context.Context, userID string) ([]models.PurchaseDetail, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "ListUserPurchases")
	span.SetAttributes(attribute.String("user_id", userID))
	defer span.End()

	purchases, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		recordError(span, err, "purchase list failed")
		return nil, err
	}

	snapshots := make(map[int64]*models.Event)
	details := make([]models.PurchaseDetail, 0, len(purchases))
	for _, p := range purchases {
		event, seen := snapshots[p.EventID]
		if !seen {
			if e, ok := s.lookup.GetEvent(ctx, p.EventID); ok {
				event = e
			}
			snapshots[p.EventID] = event
		}
		details = append(details, models.PurchaseDetail{Purchase: p, Event: event})
	}

	slog.Info("purchase history retrieved", "user_id", userID, "count", len(details), "events", len(snapshots))
	return details, nil
}

func (s *purchaseService) ConfirmPayment(ctx context.Context, userID string, id int64, paymentMethod string) (*models.Purchase, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "ConfirmPayment")
	span.SetAttributes(
		attribute.Int64("purchase_id", id),
		attribute.String("user_id", userID),
	)
	defer span.End()

	if n := utf8.RuneCountInString(paymentMethod); n < minPaymentMethodLen || n > maxPaymentMethodLen {
		span.SetStatus(codes.Error, "invalid payment method")
		return nil, pkgerrors.ErrInvalidPaymentMethod
	}

	purchase, err := s.ownedPurchase(ctx, userID, id)
	if err != nil {
		recordError(span, err, "purchase check failed")
		return nil, err
	}
	if err := paymentAllowed(purchase.Status); err != nil {
		span.SetStatus(codes.Error, "payment not allowed")
		slog.Warn("payment rejected", "purchase_id", id, "status", purchase.Status)
		return nil, err
	}

	paidAt := s.now().UTC()
	err = s.repo.UpdateStatus(ctx, id, models.StatusUpdate{
		From:             models.StatusPending,
		To:               models.StatusPaid,
		PaymentMethod:    &paymentMethod,
		PaymentTimestamp: &paidAt,
	})
	if stderrors.Is(err, pkgerrors.ErrStaleState) {
		err = s.explainStale(ctx, id, paymentAllowed)
	}
	if err != nil {
		recordError(span, err, "payment update failed")
		return nil, err
	}

	s.notifyPaymentConfirmed(ctx, models.NewPaymentNotification(purchase, paymentMethod, paidAt))

	paid, err := s.repo.GetByID(ctx, id)
	if err != nil {
		recordError(span, err, "purchase re-read failed")
		return nil, err
	}

	slog.Info("payment confirmed", "purchase_id", id, "user_id", userID, "payment_method", paymentMethod)
	return paid, nil
}

func (s *purchaseService) CancelPurchase(ctx context.Context, userID string, id int64) (*models.Purchase, error) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(ctx, "CancelPurchase")
	span.SetAttributes(
		attribute.Int64("purchase_id", id),
		attribute.String("user_id", userID),
	)
	defer span.End()

	purchase, err := s.ownedPurchase(ctx, userID, id)
	if err != nil {
		recordError(span, err, "purchase check failed")
		return nil, err
	}
	switch purchase.Status {
	case models.StatusCancelled:
		return purchase, nil
	case models.StatusPaid:
		span.SetStatus(codes.Error, "cancellation not allowed")
		slog.Warn("cancellation rejected", "purchase_id", id, "status", purchase.Status)
		return nil, pkgerrors.ErrPaidPurchase
	}

	err = s.repo.UpdateStatus(ctx, id, models.StatusUpdate{
		From: models.StatusPending,
		To:   models.StatusCancelled,
	})
	if stderrors.Is(err, pkgerrors.ErrStaleState) {
		err = s.explainStale(ctx, id, cancelAllowed)
		if stderrors.Is(err, errAlreadyCancelled) {
			err = nil
		}
	}
	if err != nil {
		recordError(span, err, "cancellation update failed")
		return nil, err
	}

	cancelled, err := s.repo.GetByID(ctx, id)
	if err != nil {
		recordError(span, err, "purchase re-read failed")
		return nil, err
	}

	slog.Info("purchase cancelled", "purchase_id", id, "user_id", userID)
	return cancelled, nil
}

// ownedPurchase fetches the purchase and checks ownership before any state
// check runs.
func (s *purchaseService) ownedPurchase(ctx context.Context, userID string, id int64) (*models.Purchase, error) {
	purchase, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase.UserID != userID {
		slog.Warn("purchase access denied", "purchase_id", id, "user_id", userID)
		return nil, pkgerrors.ErrNotOwner
	}
	return purchase, nil
}

// explainStale re-reads a purchase whose conditional update lost a race and
// reports the conflict matching its current status.
func (s *purchaseService) explainStale(ctx context.Context, id int64, allowed func(models.PurchaseStatus) error) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	slog.Warn("purchase changed concurrently", "purchase_id", id, "status", current.Status)
	if err := allowed(current.Status); err != nil {
		return err
	}
	return pkgerrors.ErrStaleState
}

func paymentAllowed(status models.PurchaseStatus) error {
	switch status {
	case models.StatusPending:
		return nil
	case models.StatusPaid:
		return pkgerrors.ErrAlreadyPaid
	case models.StatusCancelled:
		return pkgerrors.ErrCancelledPurchase
	default:
		return fmt.Errorf("%w: unknown status %q", pkgerrors.ErrConflict, status)
	}
}

func cancelAllowed(status models.PurchaseStatus) error {
	switch status {
	case models.StatusPending:
		return nil
	case models.StatusPaid:
		return pkgerrors.ErrPaidPurchase
	case models.StatusCancelled:
		return errAlreadyCancelled
	default:
		return fmt.Errorf("%w: unknown status %q", pkgerrors.ErrConflict, status)
	}
}

// notifyPaymentConfirmed publishes once and never reports failure to the
// caller. It runs after the payment is committed and detaches from request
// cancellation.
func (s *purchaseService) notifyPaymentConfirmed(ctx context.Context, n models.PaymentNotification) {
	tracer := otel.Tracer("purchase-service")
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "NotifyPaymentConfirmed")
	span.SetAttributes(attribute.Int64("purchase_id", n.PurchaseID))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, n)
	if err != nil {
		recordError(span, err, "notification publish failed")
		slog.Error("failed to publish payment notification",
			"purchase_id", n.PurchaseID,
			"user_id", n.UserID,
			"error", err)
	} else {
		slog.Info("payment notification published", "purchase_id", n.PurchaseID)
	}

	if s.observer != nil {
		s.observer(n, err)
	}
}
