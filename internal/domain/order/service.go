package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
	"github.com/pharmacart/pharmacart/internal/platform/db"
	"github.com/pharmacart/pharmacart/internal/platform/jobs"
)

// CheckoutCart is the cart snapshot checkout consumes. The cart service is
// bridged in through an adapter at wiring time.
type CheckoutCart struct {
	ID                   uuid.UUID
	OwnerID              string
	Status               string
	ShippingMethod       string
	ShippingState        string
	Subtotal             float64
	Tax                  float64
	Shipping             float64
	Total                float64
	RequiresVerification bool
	Items                []CheckoutItem
}

type CheckoutItem struct {
	ProductID      uuid.UUID
	PrescriptionID *uuid.UUID
	ProductName    string
	UnitPrice      float64
	Quantity       int
}

type CartSource interface {
	CartForCheckout(ctx context.Context, cartID uuid.UUID) (*CheckoutCart, error)
	MarkConverted(ctx context.Context, cartID uuid.UUID) error
}

// PaymentGateway charges the order total against the stored payment
// method. The gateway integration itself lives outside this module; tests
// and dev mode use a stub.
type PaymentGateway interface {
	Charge(ctx context.Context, orderID uuid.UUID, amount float64) (ref string, err error)
}

// PaymentRetryPayload is the payment.retry job body.
type PaymentRetryPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

type Service struct {
	orders     OrderRepository
	items      ItemRepository
	payments   PaymentRepository
	carts      CartSource
	gateway    PaymentGateway
	queue      jobs.Queue
	tx         db.TxRunner
	maxRetries int
	logger     zerolog.Logger
}

func NewService(
	orders OrderRepository,
	items ItemRepository,
	payments PaymentRepository,
	carts CartSource,
	gateway PaymentGateway,
	queue jobs.Queue,
	tx db.TxRunner,
	maxRetries int,
	logger zerolog.Logger,
) *Service {
	return &Service{
		orders:     orders,
		items:      items,
		payments:   payments,
		carts:      carts,
		gateway:    gateway,
		queue:      queue,
		tx:         tx,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Checkout converts the caller's cart into an order in one transaction:
// the order and its lines are written, a payment record is created and
// charged once, and the cart is archived. A failed charge does not fail
// checkout; the payment is marked failed and a payment.retry job picks it
// up. Checkout refuses carts that are empty, not active, or still waiting
// on prescription verification.
func (s *Service) Checkout(ctx context.Context, cartID uuid.UUID, actorID string) (*Order, error) {
	var o *Order
	var retry bool
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.CartForCheckout(ctx, cartID)
		if err != nil {
			return err
		}
		if cart.OwnerID != actorID {
			return apperr.Authorization("cart belongs to another user")
		}
		if cart.Status != "active" {
			return apperr.StateConflict("cart is %s and cannot be checked out", cart.Status)
		}
		if len(cart.Items) == 0 {
			return apperr.StateConflict("cart is empty")
		}
		if cart.RequiresVerification {
			return apperr.StateConflict("prescription verification is required before checkout")
		}

		o = &Order{
			CartID:         cart.ID,
			OwnerID:        cart.OwnerID,
			Status:         StatusPending,
			ShippingMethod: cart.ShippingMethod,
			ShippingState:  cart.ShippingState,
			Subtotal:       cart.Subtotal,
			Tax:            cart.Tax,
			Shipping:       cart.Shipping,
			Total:          cart.Total,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		o.Items = make([]*Item, 0, len(cart.Items))
		for _, line := range cart.Items {
			item := &Item{
				OrderID:        o.ID,
				ProductID:      line.ProductID,
				PrescriptionID: line.PrescriptionID,
				ProductName:    line.ProductName,
				UnitPrice:      line.UnitPrice,
				Quantity:       line.Quantity,
			}
			if err := s.items.Add(ctx, item); err != nil {
				return err
			}
			o.Items = append(o.Items, item)
		}

		p := &Payment{OrderID: o.ID, Amount: o.Total, Status: PaymentPending}
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		if err := s.charge(ctx, p, o); err != nil {
			return err
		}
		retry = p.Status == PaymentFailed

		return s.carts.MarkConverted(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	if retry {
		s.enqueueRetry(ctx, o.ID)
	}
	return o, nil
}

// charge runs one gateway attempt and records the outcome. Gateway
// failures are captured on the payment, never returned: the order exists
// either way and retries run in the background.
func (s *Service) charge(ctx context.Context, p *Payment, o *Order) error {
	p.Attempts++
	ref, err := s.gateway.Charge(ctx, o.ID, p.Amount)
	if err != nil {
		msg := err.Error()
		p.Status = PaymentFailed
		p.LastError = &msg
		s.logger.Warn().
			Str("order_id", o.ID.String()).
			Int("attempt", p.Attempts).
			Err(err).
			Msg("payment charge failed")
		return s.payments.Update(ctx, p)
	}
	p.Status = PaymentSucceeded
	p.GatewayRef = &ref
	p.LastError = nil
	if err := s.payments.Update(ctx, p); err != nil {
		return err
	}
	if o.Status == StatusPending {
		if err := s.orders.UpdateStatus(ctx, o.ID, StatusProcessing); err != nil {
			return err
		}
		o.Status = StatusProcessing
	}
	return nil
}

func (s *Service) enqueueRetry(ctx context.Context, orderID uuid.UUID) {
	job, err := jobs.NewJob(jobs.TypePaymentRetry, PaymentRetryPayload{OrderID: orderID})
	if err == nil {
		err = s.queue.Enqueue(ctx, job)
	}
	if err != nil {
		s.logger.Error().
			Str("order_id", orderID.String()).
			Err(err).
			Msg("failed to enqueue payment retry")
	}
}

// RetryPayment re-runs the charge for a failed payment. Attempts are a
// fixed counter with no backoff; once the limit is reached the payment
// stays failed and needs manual intervention.
func (s *Service) RetryPayment(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	var p *Payment
	var retryAgain bool
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		p, err = s.payments.GetByOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status == PaymentSucceeded {
			return apperr.StateConflict("payment already succeeded")
		}
		if p.Attempts >= s.maxRetries {
			return apperr.StateConflict("payment retry limit reached after %d attempts", p.Attempts)
		}
		if err := s.charge(ctx, p, o); err != nil {
			return err
		}
		retryAgain = p.Status == PaymentFailed && p.Attempts < s.maxRetries
		return nil
	})
	if err != nil {
		return nil, err
	}
	if retryAgain {
		s.enqueueRetry(ctx, orderID)
	}
	return p, nil
}

// HandlePaymentRetry is the payment.retry job handler. A retry that has
// become moot (payment since succeeded or limit reached) is dropped, not
// failed.
func (s *Service) HandlePaymentRetry(ctx context.Context, payload json.RawMessage) error {
	var body PaymentRetryPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("decode payment retry payload: %w", err)
	}
	_, err := s.RetryPayment(ctx, body.OrderID)
	if apperr.Is(err, apperr.CodeStateConflict) || apperr.Is(err, apperr.CodeNotFound) {
		s.logger.Info().
			Str("order_id", body.OrderID.String()).
			Err(err).
			Msg("payment retry dropped")
		return nil
	}
	return err
}

// UpdateStatus advances the order along the linear fulfillment chain.
// Cancellation is allowed from pending or processing only.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Order, error) {
	var o *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if status == StatusCancelled {
			if o.Status != StatusPending && o.Status != StatusProcessing {
				return apperr.StateConflict("cannot cancel a %s order", o.Status)
			}
		} else if nextStatus[o.Status] != status {
			return apperr.StateConflict("cannot move order from %s to %s", o.Status, status)
		}
		if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		o.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// SetTracking records the shipment reference once the order is moving.
func (s *Service) SetTracking(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) (*Order, error) {
	if carrier == "" || trackingNumber == "" {
		return nil, apperr.Validation("carrier and tracking_number are required")
	}
	var o *Order
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusProcessing && o.Status != StatusShipped {
			return apperr.StateConflict("cannot set tracking on a %s order", o.Status)
		}
		if err := s.orders.SetTracking(ctx, id, carrier, trackingNumber); err != nil {
			return err
		}
		o.Carrier = &carrier
		o.TrackingNumber = &trackingNumber
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns an order with its lines. Patients can only read their own
// orders; staff actors may read any.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Staff && o.OwnerID != actor.ID {
		return nil, apperr.Authorization("order belongs to another user")
	}
	items, err := s.items.ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Item{}
	}
	o.Items = items
	return o, nil
}

func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*Order, int, error) {
	return s.orders.List(ctx, ownerID, limit, offset)
}
