package cart

import (
	"time"

	"github.com/google/uuid"
)

// Cart statuses.
const (
	StatusActive    = "active"
	StatusConverted = "converted"
	StatusAbandoned = "abandoned"
)

// Shipping methods known to the rate table.
const (
	ShippingStandard  = "standard"
	ShippingExpedited = "expedited"
	ShippingOvernight = "overnight"
)

// Cart is the transient pre-order aggregate. Totals are denormalized onto
// the row and recomputed after every mutation; readers treat them as the
// source of truth.
type Cart struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	OwnerID              string    `db:"owner_id" json:"owner_id"`
	Status               string    `db:"status" json:"status"`
	ShippingMethod       string    `db:"shipping_method" json:"shipping_method"`
	ShippingState        string    `db:"shipping_state" json:"shipping_state"`
	Subtotal             float64   `db:"subtotal" json:"subtotal"`
	Tax                  float64   `db:"tax" json:"tax"`
	Shipping             float64   `db:"shipping" json:"shipping"`
	Total                float64   `db:"total" json:"total"`
	RequiresVerification bool      `db:"requires_verification" json:"requires_verification"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items,omitempty"`
}

// Item is one cart line. UnitPrice snapshots the product price at add time
// so later catalog edits do not silently reprice a cart.
type Item struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CartID         uuid.UUID  `db:"cart_id" json:"cart_id"`
	ProductID      uuid.UUID  `db:"product_id" json:"product_id"`
	PrescriptionID *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
	ProductName    string     `db:"product_name" json:"product_name"`
	UnitPrice      float64    `db:"unit_price" json:"unit_price"`
	Quantity       int        `db:"quantity" json:"quantity"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
