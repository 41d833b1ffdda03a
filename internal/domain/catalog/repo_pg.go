package catalog

import (
	"context"
	"errors"
	"fmt"

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

type productRepoPG struct{ pool *pgxpool.Pool }

func NewProductRepoPG(pool *pgxpool.Pool) ProductRepository {
	return &productRepoPG{pool: pool}
}

func (r *productRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const productCols = `id, name, description, ndc, manufacturer, price,
	controlled_schedule, requires_prescription, requires_consultation,
	active, created_at, updated_at`

func (r *productRepoPG) scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.NDC, &p.Manufacturer, &p.Price,
		&p.ControlledSchedule, &p.RequiresPrescription, &p.RequiresConsultation,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *productRepoPG) Create(ctx context.Context, p *Product) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO products (id, name, description, ndc, manufacturer, price,
			controlled_schedule, requires_prescription, requires_consultation, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Name, p.Description, p.NDC, p.Manufacturer, p.Price,
		p.ControlledSchedule, p.RequiresPrescription, p.RequiresConsultation, p.Active)
	if err != nil {
		return apperr.Storage("create product", err)
	}
	return nil
}

func (r *productRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	p, err := r.scanProduct(r.conn(ctx).QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("product")
	}
	if err != nil {
		return nil, apperr.Storage("get product", err)
	}
	return p, nil
}

func (r *productRepoPG) GetByNDC(ctx context.Context, ndc string) (*Product, error) {
	p, err := r.scanProduct(r.conn(ctx).QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE ndc = $1`, ndc))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("product")
	}
	if err != nil {
		return nil, apperr.Storage("get product by ndc", err)
	}
	return p, nil
}

func (r *productRepoPG) Update(ctx context.Context, p *Product) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE products SET name=$2, description=$3, ndc=$4, manufacturer=$5, price=$6,
			controlled_schedule=$7, requires_prescription=$8, requires_consultation=$9,
			active=$10, updated_at=NOW()
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.NDC, p.Manufacturer, p.Price,
		p.ControlledSchedule, p.RequiresPrescription, p.RequiresConsultation, p.Active)
	if err != nil {
		return apperr.Storage("update product", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

func (r *productRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE products SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return apperr.Storage("set product active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

func (r *productRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Product, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	i := 1
	if filter.ActiveOnly {
		where += ` AND active = true`
	}
	if filter.Schedule != "" {
		where += fmt.Sprintf(` AND controlled_schedule = $%d`, i)
		args = append(args, filter.Schedule)
		i++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR ndc = $%d)`, i, i+1)
		args = append(args, "%"+filter.Search+"%", filter.Search)
		i += 2
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count products", err)
	}

	query := `SELECT ` + productCols + ` FROM products` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, i, i+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Storage("list products", err)
	}
	defer rows.Close()

	var items []*Product
	for rows.Next() {
		p, err := r.scanProduct(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan product", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list products", err)
	}
	return items, total, nil
}
