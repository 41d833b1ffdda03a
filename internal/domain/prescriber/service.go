package prescriber

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

var validSchedules = map[string]bool{"II": true, "III": true, "IV": true, "V": true}

type Service struct {
	prescribers PrescriberRepository
	now         func() time.Time
}

func NewService(prescribers PrescriberRepository) *Service {
	return &Service{prescribers: prescribers, now: time.Now}
}

func (s *Service) validate(p *Prescriber) error {
	if p.FirstName == "" || p.LastName == "" {
		return apperr.Validation("prescriber name is required").WithField("name", "required")
	}
	if p.NPI == "" {
		return apperr.Validation("npi is required").WithField("npi", "required")
	}
	if p.LicenseNumber == "" {
		return apperr.Validation("license_number is required").WithField("license_number", "required")
	}
	for _, sched := range p.AuthorizedSchedules {
		if !validSchedules[sched] {
			return apperr.Validation("invalid authorized schedule: %s", sched).
				WithField("authorized_schedules", "must contain only II, III, IV, V")
		}
	}
	if len(p.AuthorizedSchedules) > 0 && (p.DEANumber == nil || *p.DEANumber == "") {
		return apperr.Validation("authorized schedules require a DEA number").
			WithField("dea_number", "required when authorized_schedules is set")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p *Prescriber) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.Active = true
	return s.prescribers.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescriber, error) {
	return s.prescribers.GetByID(ctx, id)
}

func (s *Service) GetByNPI(ctx context.Context, npi string) (*Prescriber, error) {
	return s.prescribers.GetByNPI(ctx, npi)
}

func (s *Service) Update(ctx context.Context, p *Prescriber) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return s.prescribers.Update(ctx, p)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.prescribers.SetActive(ctx, id, false)
}

func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Prescriber, int, error) {
	return s.prescribers.List(ctx, activeOnly, limit, offset)
}

// CanPrescribeSchedule resolves the prescriber and evaluates prescribing
// authority for the given schedule. Prescription intake calls this before
// any row is written.
func (s *Service) CanPrescribeSchedule(ctx context.Context, id uuid.UUID, schedule string) (bool, error) {
	p, err := s.prescribers.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.CanPrescribeSchedule(schedule, s.now()), nil
}
