package cart

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
	"github.com/pharmacart/pharmacart/internal/platform/db"
)

// ProductInfo is the catalog snapshot cart mutations need.
type ProductInfo struct {
	ID                   uuid.UUID
	Name                 string
	Price                float64
	RequiresPrescription bool
	Active               bool
}

type ProductSource interface {
	Product(ctx context.Context, id uuid.UUID) (*ProductInfo, error)
}

// PrescriptionSource answers whether a linked prescription is verified and
// unexpired right now.
type PrescriptionSource interface {
	UsableForPurchase(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	carts          CartRepository
	items          ItemRepository
	products       ProductSource
	prescriptions  PrescriptionSource
	tx             db.TxRunner
	defaultTaxRate float64
	now            func() time.Time
}

func NewService(
	carts CartRepository,
	items ItemRepository,
	products ProductSource,
	prescriptions PrescriptionSource,
	tx db.TxRunner,
	defaultTaxRate float64,
) *Service {
	return &Service{
		carts:          carts,
		items:          items,
		products:       products,
		prescriptions:  prescriptions,
		tx:             tx,
		defaultTaxRate: defaultTaxRate,
		now:            time.Now,
	}
}

// GetOrCreate returns the owner's active cart, creating one lazily on
// first use.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (*Cart, error) {
	if ownerID == "" {
		return nil, apperr.Validation("cart owner is required")
	}
	c, err := s.carts.GetActiveByOwner(ctx, ownerID)
	if err == nil {
		return s.load(ctx, c)
	}
	if !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}
	c = &Cart{OwnerID: ownerID, Status: StatusActive, ShippingMethod: ShippingStandard}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, err
	}
	c.Items = []*Item{}
	return c, nil
}

// Get returns a cart with its line items attached. Patients can only read
// their own cart; staff actors may read any.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Cart, error) {
	c, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(c, actor); err != nil {
		return nil, err
	}
	return s.load(ctx, c)
}

func ownedBy(c *Cart, actor auth.Actor) error {
	if actor.Staff || c.OwnerID == actor.ID {
		return nil
	}
	return apperr.Authorization("cart belongs to another user")
}

func (s *Service) load(ctx context.Context, c *Cart) (*Cart, error) {
	items, err := s.items.ListByCart(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	c.Items = items
	return c, nil
}

func (s *Service) activeCart(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Cart, error) {
	c, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(c, actor); err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, apperr.StateConflict("cart is %s and can no longer be modified", c.Status)
	}
	return c, nil
}

// AddItemRequest adds a product to a cart, optionally linked to a
// prescription when the product requires one.
type AddItemRequest struct {
	ProductID      uuid.UUID  `json:"product_id"`
	Quantity       int        `json:"quantity"`
	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty"`
}

// AddItem appends a line (or bumps the quantity of an identical line) and
// recomputes totals in the same transaction.
func (s *Service) AddItem(ctx context.Context, cartID uuid.UUID, req AddItemRequest, actor auth.Actor, out *Totals) (*Cart, error) {
	if req.Quantity <= 0 {
		return nil, apperr.Validation("quantity must be positive").WithField("quantity", "must be > 0")
	}
	product, err := s.products.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, apperr.Validation("product %s is no longer available", product.Name)
	}

	var c *Cart
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.activeCart(ctx, cartID, actor)
		if err != nil {
			return err
		}

		items, err := s.items.ListByCart(ctx, c.ID)
		if err != nil {
			return err
		}
		var existing *Item
		for _, it := range items {
			if it.ProductID == req.ProductID && ptrEq(it.PrescriptionID, req.PrescriptionID) {
				existing = it
				break
			}
		}
		if existing != nil {
			if err := s.items.UpdateQuantity(ctx, existing.ID, existing.Quantity+req.Quantity); err != nil {
				return err
			}
		} else {
			item := &Item{
				CartID:         c.ID,
				ProductID:      product.ID,
				PrescriptionID: req.PrescriptionID,
				ProductName:    product.Name,
				UnitPrice:      product.Price,
				Quantity:       req.Quantity,
			}
			if err := s.items.Add(ctx, item); err != nil {
				return err
			}
		}
		return s.recompute(ctx, c, out)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func ptrEq(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpdateItemQuantity sets a line's quantity; zero removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int, actor auth.Actor, out *Totals) (*Cart, error) {
	if quantity < 0 {
		return nil, apperr.Validation("quantity must not be negative").WithField("quantity", "must be >= 0")
	}
	var c *Cart
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.activeCart(ctx, cartID, actor)
		if err != nil {
			return err
		}
		item, err := s.items.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if item.CartID != c.ID {
			return apperr.NotFound("cart item")
		}
		if quantity == 0 {
			if err := s.items.Remove(ctx, itemID); err != nil {
				return err
			}
		} else if err := s.items.UpdateQuantity(ctx, itemID, quantity); err != nil {
			return err
		}
		return s.recompute(ctx, c, out)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem deletes a line and recomputes totals.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, actor auth.Actor, out *Totals) (*Cart, error) {
	return s.UpdateItemQuantity(ctx, cartID, itemID, 0, actor, out)
}

// SetShipping changes the shipping method and destination state and
// recomputes totals.
func (s *Service) SetShipping(ctx context.Context, cartID uuid.UUID, method, state string, actor auth.Actor, out *Totals) (*Cart, error) {
	if !ValidShippingMethod(method) {
		return nil, apperr.Validation("invalid shipping method: %s", method).
			WithField("shipping_method", "must be standard, expedited, or overnight")
	}
	var c *Cart
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.activeCart(ctx, cartID, actor)
		if err != nil {
			return err
		}
		c.ShippingMethod = method
		c.ShippingState = state
		return s.recompute(ctx, c, out)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Recompute re-derives and persists the cart totals without any other
// mutation. Calling it twice in a row yields identical totals.
func (s *Service) Recompute(ctx context.Context, cartID uuid.UUID, actor auth.Actor) (*Cart, *Totals, error) {
	var c *Cart
	var t Totals
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.carts.GetByID(ctx, cartID)
		if err != nil {
			return err
		}
		if err := ownedBy(c, actor); err != nil {
			return err
		}
		return s.recompute(ctx, c, &t)
	})
	if err != nil {
		return nil, nil, err
	}
	return c, &t, nil
}

// GetForCheckout returns the cart with totals and the prescription gate
// re-evaluated against current data. Checkout reads through this so a
// prescription that expired or was cancelled since the last cart mutation
// cannot slip past the stored requires_verification flag; the caller runs
// its own ownership check against OwnerID.
func (s *Service) GetForCheckout(ctx context.Context, cartID uuid.UUID) (*Cart, error) {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return s.load(ctx, c)
	}
	if err := s.recompute(ctx, c, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// recompute recalculates totals from the current lines and persists them
// onto the cart row. The prescription gate is evaluated per line: a
// required prescription that is missing, unverified, or expired flips
// RequiresVerification.
func (s *Service) recompute(ctx context.Context, c *Cart, out *Totals) error {
	items, err := s.items.ListByCart(ctx, c.ID)
	if err != nil {
		return err
	}

	lines := make([]TotalsInput, 0, len(items))
	for _, it := range items {
		product, err := s.products.Product(ctx, it.ProductID)
		if err != nil {
			return err
		}
		line := TotalsInput{
			UnitPrice:            it.UnitPrice,
			Quantity:             it.Quantity,
			RequiresPrescription: product.RequiresPrescription,
		}
		if product.RequiresPrescription && it.PrescriptionID != nil {
			usable, err := s.prescriptions.UsableForPurchase(ctx, *it.PrescriptionID)
			if err != nil {
				return err
			}
			line.PrescriptionUsable = usable
		}
		lines = append(lines, line)
	}

	t := ComputeTotals(lines, c.ShippingMethod, c.ShippingState, s.defaultTaxRate)
	c.Subtotal = t.Subtotal
	c.Tax = t.Tax
	c.Shipping = t.Shipping
	c.Total = t.Total
	c.RequiresVerification = t.RequiresVerification
	if items == nil {
		items = []*Item{}
	}
	c.Items = items
	if out != nil {
		*out = t
	}
	return s.carts.UpdateTotals(ctx, c)
}

// MarkConverted archives the cart after checkout turned it into an order.
func (s *Service) MarkConverted(ctx context.Context, cartID uuid.UUID) error {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return err
	}
	if c.Status != StatusActive {
		return apperr.StateConflict("cart is already %s", c.Status)
	}
	return s.carts.SetStatus(ctx, cartID, StatusConverted)
}

// MarkAbandoned flips carts idle for longer than the given duration. The
// background cart.abandon job drives this on a schedule.
func (s *Service) MarkAbandoned(ctx context.Context, idleFor time.Duration) (int, error) {
	return s.carts.MarkAbandonedBefore(ctx, s.now().Add(-idleFor))
}
