package prescriber

import (
	"context"

	"github.com/google/uuid"
)

type PrescriberRepository interface {
	Create(ctx context.Context, p *Prescriber) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescriber, error)
	GetByNPI(ctx context.Context, npi string) (*Prescriber, error)
	Update(ctx context.Context, p *Prescriber) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Prescriber, int, error)
}
