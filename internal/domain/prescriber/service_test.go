package prescriber

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

type mockPrescriberRepo struct {
	prescribers map[uuid.UUID]*Prescriber
}

func newMockPrescriberRepo() *mockPrescriberRepo {
	return &mockPrescriberRepo{prescribers: map[uuid.UUID]*Prescriber{}}
}

func (m *mockPrescriberRepo) Create(_ context.Context, p *Prescriber) error {
	p.ID = uuid.New()
	cp := *p
	m.prescribers[p.ID] = &cp
	return nil
}

func (m *mockPrescriberRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescriber, error) {
	p, ok := m.prescribers[id]
	if !ok {
		return nil, apperr.NotFound("prescriber")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrescriberRepo) GetByNPI(_ context.Context, npi string) (*Prescriber, error) {
	for _, p := range m.prescribers {
		if p.NPI == npi {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("prescriber")
}

func (m *mockPrescriberRepo) Update(_ context.Context, p *Prescriber) error {
	if _, ok := m.prescribers[p.ID]; !ok {
		return apperr.NotFound("prescriber")
	}
	cp := *p
	m.prescribers[p.ID] = &cp
	return nil
}

func (m *mockPrescriberRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p, ok := m.prescribers[id]
	if !ok {
		return apperr.NotFound("prescriber")
	}
	p.Active = active
	return nil
}

func (m *mockPrescriberRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*Prescriber, int, error) {
	var items []*Prescriber
	for _, p := range m.prescribers {
		if activeOnly && !p.Active {
			continue
		}
		cp := *p
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func TestCreatePrescriber_Validation(t *testing.T) {
	svc := NewService(newMockPrescriberRepo())

	err := svc.Create(context.Background(), &Prescriber{FirstName: "Dana"})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("missing fields: got %v, want validation error", err)
	}

	err = svc.Create(context.Background(), &Prescriber{
		FirstName: "Dana", LastName: "Okafor", NPI: "1234567890",
		LicenseNumber: "MD-1", AuthorizedSchedules: []string{"II"},
	})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("schedules without DEA number: got %v, want validation error", err)
	}

	err = svc.Create(context.Background(), &Prescriber{
		FirstName: "Dana", LastName: "Okafor", NPI: "1234567890",
		LicenseNumber: "MD-1", DEANumber: strPtr("BO1234563"),
		AuthorizedSchedules: []string{"I"},
	})
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("schedule I: got %v, want validation error", err)
	}
}

func TestCanPrescribeSchedule_Service(t *testing.T) {
	repo := newMockPrescriberRepo()
	svc := NewService(repo)
	now := time.Now()

	p := deaPrescriber(now, "II")
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := svc.CanPrescribeSchedule(context.Background(), p.ID, "II")
	if err != nil || !ok {
		t.Errorf("schedule II: got (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = svc.CanPrescribeSchedule(context.Background(), p.ID, "V")
	if err != nil || ok {
		t.Errorf("schedule V: got (%v, %v), want (false, nil)", ok, err)
	}

	_, err = svc.CanPrescribeSchedule(context.Background(), uuid.New(), "none")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("unknown prescriber: got %v, want not found", err)
	}
}
