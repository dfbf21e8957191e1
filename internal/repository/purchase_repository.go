package repository

import (
	"context"

	"github.com/honeynil/TicketPurchaseService/internal/models"
)

type PurchaseRepository interface {
	Create(ctx context.Context, p *models.Purchase) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Purchase, error)
	ListByUser(ctx context.Context, userID string) ([]models.Purchase, error)
	// UpdateStatus applies upd only while the stored status equals upd.From and
	// returns pkg/errors.ErrStaleState otherwise.
	UpdateStatus(ctx context.Context, id int64, upd models.StatusUpdate) error
}
