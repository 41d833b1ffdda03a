package cart

import (
	"context"
	"errors"
	"time"

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

// =========== Cart Repository ===========

type cartRepoPG struct{ pool *pgxpool.Pool }

func NewCartRepoPG(pool *pgxpool.Pool) CartRepository {
	return &cartRepoPG{pool: pool}
}

func (r *cartRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cartCols = `id, owner_id, status, shipping_method, shipping_state,
	subtotal, tax, shipping, total, requires_verification, created_at, updated_at`

func (r *cartRepoPG) scanCart(row pgx.Row) (*Cart, error) {
	var c Cart
	err := row.Scan(&c.ID, &c.OwnerID, &c.Status, &c.ShippingMethod, &c.ShippingState,
		&c.Subtotal, &c.Tax, &c.Shipping, &c.Total, &c.RequiresVerification,
		&c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *cartRepoPG) Create(ctx context.Context, c *Cart) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO carts (id, owner_id, status, shipping_method, shipping_state,
			subtotal, tax, shipping, total, requires_verification)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.OwnerID, c.Status, c.ShippingMethod, c.ShippingState,
		c.Subtotal, c.Tax, c.Shipping, c.Total, c.RequiresVerification)
	if err != nil {
		return apperr.Storage("create cart", err)
	}
	return nil
}

func (r *cartRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	c, err := r.scanCart(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cartCols+` FROM carts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("cart")
	}
	if err != nil {
		return nil, apperr.Storage("get cart", err)
	}
	return c, nil
}

func (r *cartRepoPG) GetActiveByOwner(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := r.scanCart(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cartCols+` FROM carts WHERE owner_id = $1 AND status = 'active'
		 ORDER BY created_at DESC LIMIT 1`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("cart")
	}
	if err != nil {
		return nil, apperr.Storage("get active cart", err)
	}
	return c, nil
}

func (r *cartRepoPG) UpdateTotals(ctx context.Context, c *Cart) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE carts SET shipping_method=$2, shipping_state=$3,
			subtotal=$4, tax=$5, shipping=$6, total=$7, requires_verification=$8,
			updated_at=NOW()
		WHERE id=$1`,
		c.ID, c.ShippingMethod, c.ShippingState,
		c.Subtotal, c.Tax, c.Shipping, c.Total, c.RequiresVerification)
	if err != nil {
		return apperr.Storage("update cart totals", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart")
	}
	return nil
}

func (r *cartRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE carts SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return apperr.Storage("set cart status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart")
	}
	return nil
}

func (r *cartRepoPG) MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE carts SET status='abandoned', updated_at=NOW()
		 WHERE status='active' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, apperr.Storage("mark carts abandoned", err)
	}
	return int(tag.RowsAffected()), nil
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

const itemCols = `id, cart_id, product_id, prescription_id, product_name,
	unit_price, quantity, created_at, updated_at`

func (r *itemRepoPG) scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.PrescriptionID, &it.ProductName,
		&it.UnitPrice, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	return &it, err
}

func (r *itemRepoPG) Add(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, prescription_id, product_name, unit_price, quantity)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.CartID, item.ProductID, item.PrescriptionID, item.ProductName,
		item.UnitPrice, item.Quantity)
	if err != nil {
		return apperr.Storage("add cart item", err)
	}
	return nil
}

func (r *itemRepoPG) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := r.scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM cart_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("cart item")
	}
	if err != nil {
		return nil, apperr.Storage("get cart item", err)
	}
	return it, nil
}

func (r *itemRepoPG) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE cart_items SET quantity=$2, updated_at=NOW() WHERE id=$1`, id, quantity)
	if err != nil {
		return apperr.Storage("update cart item", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart item")
	}
	return nil
}

func (r *itemRepoPG) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cart_items WHERE id=$1`, id)
	if err != nil {
		return apperr.Storage("remove cart item", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("cart item")
	}
	return nil
}

func (r *itemRepoPG) ListByCart(ctx context.Context, cartID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM cart_items WHERE cart_id = $1 ORDER BY created_at`, cartID)
	if err != nil {
		return nil, apperr.Storage("list cart items", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := r.scanItem(rows)
		if err != nil {
			return nil, apperr.Storage("scan cart item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list cart items", err)
	}
	return items, nil
}
