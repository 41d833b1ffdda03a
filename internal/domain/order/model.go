package order

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. Progression is linear; cancellation is only possible
// before shipment.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// nextStatus is the only permitted forward transition for each status.
var nextStatus = map[string]string{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// Order is the persisted record of a checkout, derived 1:1 from a cart and
// independently mutable afterward.
type Order struct {
	ID             uuid.UUID `db:"id" json:"id"`
	CartID         uuid.UUID `db:"cart_id" json:"cart_id"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	Status         string    `db:"status" json:"status"`
	ShippingMethod string    `db:"shipping_method" json:"shipping_method"`
	ShippingState  string    `db:"shipping_state" json:"shipping_state"`
	Subtotal       float64   `db:"subtotal" json:"subtotal"`
	Tax            float64   `db:"tax" json:"tax"`
	Shipping       float64   `db:"shipping" json:"shipping"`
	Total          float64   `db:"total" json:"total"`
	TrackingNumber *string   `db:"tracking_number" json:"tracking_number,omitempty"`
	Carrier        *string   `db:"carrier" json:"carrier,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items,omitempty"`
}

// Item is one order line, frozen at checkout time.
type Item struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrderID        uuid.UUID  `db:"order_id" json:"order_id"`
	ProductID      uuid.UUID  `db:"product_id" json:"product_id"`
	PrescriptionID *uuid.UUID `db:"prescription_id" json:"prescription_id,omitempty"`
	ProductName    string     `db:"product_name" json:"product_name"`
	UnitPrice      float64    `db:"unit_price" json:"unit_price"`
	Quantity       int        `db:"quantity" json:"quantity"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Payment tracks the charge for an order. Retries bump Attempts up to the
// configured limit; there is no backoff.
type Payment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	Amount     float64   `db:"amount" json:"amount"`
	Status     string    `db:"status" json:"status"`
	Attempts   int       `db:"attempts" json:"attempts"`
	GatewayRef *string   `db:"gateway_ref" json:"gateway_ref,omitempty"`
	LastError  *string   `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
