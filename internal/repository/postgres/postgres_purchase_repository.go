package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/infrastructure/observability"
	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const purchaseColumns = `id, user_id, event_id, quantity, unit_price, total, status, payment_method, purchase_timestamp, payment_timestamp, created_at, updated_at`

type PostgresPurchaseRepository struct {
	db *sql.DB
}

func NewPostgresPurchaseRepository(db *sql.DB) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{db: db}
}

// observe records the span status and the repository metrics for one call.
func observe(span trace.Span, method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.RepositoryCalls.WithLabelValues(method, status).Inc()
	observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (r *PostgresPurchaseRepository) Create(ctx context.Context, p *models.Purchase) (id int64, err error) {
	tracer := otel.Tracer("purchase-repository")
	ctx, span := tracer.Start(ctx, "CreatePurchase")
	defer span.End()

	start := time.Now()
	defer func() { observe(span, "CreatePurchase", start, err) }()

	if p == nil {
		err = pkgerrors.ErrNilPurchase
		slog.Error("failed to create purchase", "method", "Create", "error", err)
		return 0, err
	}
	if p.Quantity < 1 || p.Quantity > 100 {
		err = pkgerrors.ErrInvalidQuantity
		slog.Error("invalid purchase quantity", "method", "Create", "quantity", p.Quantity, "error", err)
		return 0, err
	}
	if p.Status == "" {
		p.Status = models.StatusPending
	}
	if p.Status != models.StatusPending {
		err = fmt.Errorf("%w: new purchases must be pending, got %q", pkgerrors.ErrInvalidRequest, p.Status)
		slog.Error("invalid purchase status", "method", "Create", "status", p.Status, "error", err)
		return 0, err
	}

	span.SetAttributes(
		attribute.String("user_id", p.UserID),
		attribute.Int64("event_id", p.EventID),
		attribute.Int("quantity", p.Quantity),
	)

	query := `INSERT INTO purchases (user_id, event_id, quantity, unit_price, total, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, purchase_timestamp, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, p.UserID, p.EventID, p.Quantity, p.UnitPrice, p.Total, p.Status).
		Scan(&p.ID, &p.PurchaseTimestamp, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		slog.Error("failed to create purchase", "method", "Create", "user_id", p.UserID, "event_id", p.EventID, "error", err)
		err = fmt.Errorf("failed to create purchase: %w", err)
		return 0, err
	}

	slog.Info("purchase created", "method", "Create", "purchase_id", p.ID, "user_id", p.UserID, "event_id", p.EventID, "total", p.Total.String())
	return p.ID, nil
}

func (r *PostgresPurchaseRepository) GetByID(ctx context.Context, id int64) (p *models.Purchase, err error) {
	tracer := otel.Tracer("purchase-repository")
	ctx, span := tracer.Start(ctx, "GetPurchaseByID")
	span.SetAttributes(attribute.Int64("purchase_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		// a missing row is an answer, not a failure
		if stderrors.Is(err, pkgerrors.ErrPurchaseNotFound) {
			observe(span, "GetPurchaseByID", start, nil)
			return
		}
		observe(span, "GetPurchaseByID", start, err)
	}()

	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	p, err = scanPurchase(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("purchase not found", "method", "GetByID", "purchase_id", id)
		return nil, pkgerrors.ErrPurchaseNotFound
	}
	if err != nil {
		slog.Error("failed to get purchase by id", "method", "GetByID", "purchase_id", id, "error", err)
		return nil, fmt.Errorf("failed to get purchase by id: %w", err)
	}

	return p, nil
}

func (r *PostgresPurchaseRepository) ListByUser(ctx context.Context, userID string) (purchases []models.Purchase, err error) {
	tracer := otel.Tracer("purchase-repository")
	ctx, span := tracer.Start(ctx, "ListPurchasesByUser")
	span.SetAttributes(attribute.String("user_id", userID))
	defer span.End()

	start := time.Now()
	defer func() { observe(span, "ListPurchasesByUser", start, err) }()

	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id = $1 ORDER BY purchase_timestamp DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Error("failed to list purchases", "method", "ListByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	purchases = make([]models.Purchase, 0)
	for rows.Next() {
		p, scanErr := scanPurchase(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan purchase: %w", scanErr)
			slog.Error("failed to scan purchase", "method", "ListByUser", "user_id", userID, "error", scanErr)
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	if err = rows.Err(); err != nil {
		slog.Error("failed to iterate purchases", "method", "ListByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	slog.Info("purchases listed", "method", "ListByUser", "user_id", userID, "count", len(purchases))
	return purchases, nil
}

func (r *PostgresPurchaseRepository) UpdateStatus(ctx context.Context, id int64, upd models.StatusUpdate) (err error) {
	tracer := otel.Tracer("purchase-repository")
	ctx, span := tracer.Start(ctx, "UpdatePurchaseStatus")
	span.SetAttributes(
		attribute.Int64("purchase_id", id),
		attribute.String("from", string(upd.From)),
		attribute.String("to", string(upd.To)),
	)
	defer span.End()

	start := time.Now()
	defer func() { observe(span, "UpdatePurchaseStatus", start, err) }()

	if !upd.From.CanTransitionTo(upd.To) {
		err = fmt.Errorf("%w: transition %s -> %s is not allowed", pkgerrors.ErrConflict, upd.From, upd.To)
		slog.Error("invalid status transition", "method", "UpdateStatus", "purchase_id", id, "from", upd.From, "to", upd.To)
		return err
	}

	var method sql.NullString
	if upd.PaymentMethod != nil {
		method = sql.NullString{String: *upd.PaymentMethod, Valid: true}
	}
	var paidAt sql.NullTime
	if upd.PaymentTimestamp != nil {
		paidAt = sql.NullTime{Time: *upd.PaymentTimestamp, Valid: true}
	}

	query := `UPDATE purchases SET status = $1, payment_method = COALESCE($2, payment_method), payment_timestamp = COALESCE($3, payment_timestamp), updated_at = NOW() WHERE id = $4 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, upd.To, method, paidAt, id, upd.From)
	if err != nil {
		slog.Error("failed to update purchase status", "method", "UpdateStatus", "purchase_id", id, "error", err)
		return fmt.Errorf("failed to update purchase status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		slog.Error("failed to read affected rows", "method", "UpdateStatus", "purchase_id", id, "error", err)
		return fmt.Errorf("failed to update purchase status: %w", err)
	}
	if affected == 0 {
		slog.Warn("purchase status changed concurrently", "method", "UpdateStatus", "purchase_id", id, "expected", upd.From)
		return pkgerrors.ErrStaleState
	}

	slog.Info("purchase status updated", "method", "UpdateStatus", "purchase_id", id, "from", upd.From, "to", upd.To)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	var (
		p      models.Purchase
		method sql.NullString
		paidAt sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.EventID,
		&p.Quantity,
		&p.UnitPrice,
		&p.Total,
		&p.Status,
		&method,
		&p.PurchaseTimestamp,
		&paidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("purchase %d has unknown status %q", p.ID, p.Status)
	}
	if method.Valid {
		p.PaymentMethod = &method.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaymentTimestamp = &t
	}
	return &p, nil
}
