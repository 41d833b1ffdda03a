package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

type Service struct {
	products ProductRepository
}

func NewService(products ProductRepository) *Service {
	return &Service{products: products}
}

func (s *Service) validate(p *Product) error {
	if p.Name == "" {
		return apperr.Validation("name is required").WithField("name", "required")
	}
	if p.NDC == "" {
		return apperr.Validation("ndc is required").WithField("ndc", "required")
	}
	if p.Price < 0 {
		return apperr.Validation("price must not be negative").WithField("price", "must be >= 0")
	}
	if p.ControlledSchedule == "" {
		p.ControlledSchedule = ScheduleNone
	}
	if !ValidSchedules[p.ControlledSchedule] {
		return apperr.Validation("invalid controlled schedule: %s", p.ControlledSchedule).
			WithField("controlled_schedule", "must be one of none, II, III, IV, V")
	}
	// A scheduled drug is by definition prescription-only.
	if p.IsControlled() {
		p.RequiresPrescription = true
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Product) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.Active = true
	return s.products.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

func (s *Service) GetByNDC(ctx context.Context, ndc string) (*Product, error) {
	return s.products.GetByNDC(ctx, ndc)
}

func (s *Service) Update(ctx context.Context, p *Product) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return s.products.Update(ctx, p)
}

// Retire soft-deletes a product. Retired products stay resolvable by ID so
// historical orders and prescriptions keep their references.
func (s *Service) Retire(ctx context.Context, id uuid.UUID) error {
	return s.products.SetActive(ctx, id, false)
}

func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) error {
	return s.products.SetActive(ctx, id, true)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Product, int, error) {
	if filter.Schedule != "" && !ValidSchedules[filter.Schedule] {
		return nil, 0, apperr.Validation("invalid controlled schedule: %s", filter.Schedule)
	}
	return s.products.List(ctx, filter, limit, offset)
}
