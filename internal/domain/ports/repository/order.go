package repository

import (
	"context"

	"installment-engine/internal/domain/model"
)

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	// Create inserts the order together with its installments.
	Create(ctx context.Context, tx Tx, o *model.Order) error
	// FindByID loads the order and its installments; with a tx the order row is locked.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	ListByBuyer(ctx context.Context, tx Tx, buyerID string) ([]*model.Order, error)
	// Update persists the aggregate's mutable fields and installment states.
	Update(ctx context.Context, tx Tx, o *model.Order) error
}
