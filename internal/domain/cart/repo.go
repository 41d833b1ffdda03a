package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CartRepository interface {
	Create(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cart, error)
	// GetActiveByOwner returns the owner's single active cart, or a
	// not-found error when none exists.
	GetActiveByOwner(ctx context.Context, ownerID string) (*Cart, error)
	// UpdateTotals persists the recomputed money fields and shipping
	// metadata.
	UpdateTotals(ctx context.Context, c *Cart) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	// MarkAbandonedBefore flips active carts untouched since the cutoff to
	// abandoned and returns how many were flipped.
	MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type ItemRepository interface {
	Add(ctx context.Context, item *Item) error
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	Remove(ctx context.Context, id uuid.UUID) error
	ListByCart(ctx context.Context, cartID uuid.UUID) ([]*Item, error)
}
