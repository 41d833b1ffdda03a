package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Search     string
	Schedule   string
	ActiveOnly bool
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByNDC(ctx context.Context, ndc string) (*Product, error)
	Update(ctx context.Context, p *Product) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Product, int, error)
}
