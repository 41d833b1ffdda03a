package prescriber

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

type prescriberRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriberRepoPG(pool *pgxpool.Pool) PrescriberRepository {
	return &prescriberRepoPG{pool: pool}
}

func (r *prescriberRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriberCols = `id, first_name, last_name, npi, license_number, license_state,
	license_expiry, dea_number, dea_expiry, authorized_schedules,
	active, created_at, updated_at`

func (r *prescriberRepoPG) scanPrescriber(row pgx.Row) (*Prescriber, error) {
	var p Prescriber
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.NPI, &p.LicenseNumber, &p.LicenseState,
		&p.LicenseExpiry, &p.DEANumber, &p.DEAExpiry, &p.AuthorizedSchedules,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriberRepoPG) Create(ctx context.Context, p *Prescriber) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescribers (id, first_name, last_name, npi, license_number, license_state,
			license_expiry, dea_number, dea_expiry, authorized_schedules, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.FirstName, p.LastName, p.NPI, p.LicenseNumber, p.LicenseState,
		p.LicenseExpiry, p.DEANumber, p.DEAExpiry, p.AuthorizedSchedules, p.Active)
	if err != nil {
		return apperr.Storage("create prescriber", err)
	}
	return nil
}

func (r *prescriberRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescriber, error) {
	p, err := r.scanPrescriber(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriberCols+` FROM prescribers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescriber")
	}
	if err != nil {
		return nil, apperr.Storage("get prescriber", err)
	}
	return p, nil
}

func (r *prescriberRepoPG) GetByNPI(ctx context.Context, npi string) (*Prescriber, error) {
	p, err := r.scanPrescriber(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriberCols+` FROM prescribers WHERE npi = $1`, npi))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescriber")
	}
	if err != nil {
		return nil, apperr.Storage("get prescriber by npi", err)
	}
	return p, nil
}

func (r *prescriberRepoPG) Update(ctx context.Context, p *Prescriber) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescribers SET first_name=$2, last_name=$3, npi=$4, license_number=$5,
			license_state=$6, license_expiry=$7, dea_number=$8, dea_expiry=$9,
			authorized_schedules=$10, active=$11, updated_at=NOW()
		WHERE id=$1`,
		p.ID, p.FirstName, p.LastName, p.NPI, p.LicenseNumber,
		p.LicenseState, p.LicenseExpiry, p.DEANumber, p.DEAExpiry,
		p.AuthorizedSchedules, p.Active)
	if err != nil {
		return apperr.Storage("update prescriber", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescriber")
	}
	return nil
}

func (r *prescriberRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescribers SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return apperr.Storage("set prescriber active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescriber")
	}
	return nil
}

func (r *prescriberRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Prescriber, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE active = true`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescribers`+where).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count prescribers", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriberCols+` FROM prescribers`+where+` ORDER BY last_name, first_name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list prescribers", err)
	}
	defer rows.Close()

	var items []*Prescriber
	for rows.Next() {
		p, err := r.scanPrescriber(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan prescriber", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list prescribers", err)
	}
	return items, total, nil
}
