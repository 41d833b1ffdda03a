package order

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate locks the row so status transitions serialize.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetTracking(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) error
	List(ctx context.Context, ownerID string, limit, offset int) ([]*Order, int, error)
}

type ItemRepository interface {
	Add(ctx context.Context, item *Item) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Item, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	// GetByOrderForUpdate locks the payment row for the retry bookkeeping.
	GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}
