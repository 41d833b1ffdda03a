package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orderCols = `id, cart_id, owner_id, status, shipping_method, shipping_state,
	subtotal, tax, shipping, total, tracking_number, carrier, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CartID, &o.OwnerID, &o.Status, &o.ShippingMethod, &o.ShippingState,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Total, &o.TrackingNumber, &o.Carrier,
		&o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, cart_id, owner_id, status, shipping_method, shipping_state,
			subtotal, tax, shipping, total)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.CartID, o.OwnerID, o.Status, o.ShippingMethod, o.ShippingState,
		o.Subtotal, o.Tax, o.Shipping, o.Total)
	if err != nil {
		return apperr.Storage("create order", err)
	}
	return nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := r.scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order")
	}
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}
	return o, nil
}

func (r *orderRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := r.scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order")
	}
	if err != nil {
		return nil, apperr.Storage("lock order", err)
	}
	return o, nil
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return apperr.Storage("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order")
	}
	return nil
}

func (r *orderRepoPG) SetTracking(ctx context.Context, id uuid.UUID, carrier, trackingNumber string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE orders SET carrier=$2, tracking_number=$3, updated_at=NOW() WHERE id=$1`,
		id, carrier, trackingNumber)
	if err != nil {
		return apperr.Storage("set order tracking", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order")
	}
	return nil
}

func (r *orderRepoPG) List(ctx context.Context, ownerID string, limit, offset int) ([]*Order, int, error) {
	where := ``
	args := []interface{}{}
	if ownerID != "" {
		where = ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count orders", err)
	}

	n := len(args)
	query := `SELECT ` + orderCols + ` FROM orders` + where
	if n == 0 {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	}
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Storage("list orders", err)
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan order", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list orders", err)
	}
	return items, total, nil
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *itemRepoPG) Add(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, prescription_id, product_name, unit_price, quantity)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.OrderID, item.ProductID, item.PrescriptionID, item.ProductName,
		item.UnitPrice, item.Quantity)
	if err != nil {
		return apperr.Storage("add order item", err)
	}
	return nil
}

func (r *itemRepoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, product_id, prescription_id, product_name, unit_price, quantity, created_at
		FROM order_items WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, apperr.Storage("list order items", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.PrescriptionID,
			&it.ProductName, &it.UnitPrice, &it.Quantity, &it.CreatedAt); err != nil {
			return nil, apperr.Storage("scan order item", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list order items", err)
	}
	return items, nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const paymentCols = `id, order_id, amount, status, attempts, gateway_ref, last_error, created_at, updated_at`

func (r *paymentRepoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Attempts,
		&p.GatewayRef, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, status, attempts, gateway_ref, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.OrderID, p.Amount, p.Status, p.Attempts, p.GatewayRef, p.LastError)
	if err != nil {
		return apperr.Storage("create payment", err)
	}
	return nil
}

func (r *paymentRepoPG) GetByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := r.scanPayment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment")
	}
	if err != nil {
		return nil, apperr.Storage("lock payment", err)
	}
	return p, nil
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payments SET status=$2, attempts=$3, gateway_ref=$4, last_error=$5, updated_at=NOW()
		WHERE id=$1`,
		p.ID, p.Status, p.Attempts, p.GatewayRef, p.LastError)
	if err != nil {
		return apperr.Storage("update payment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("payment")
	}
	return nil
}
