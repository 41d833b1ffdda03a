package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

type mockProductRepo struct {
	products map[uuid.UUID]*Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: map[uuid.UUID]*Product{}}
}

func (m *mockProductRepo) Create(_ context.Context, p *Product) error {
	p.ID = uuid.New()
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product")
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) GetByNDC(_ context.Context, ndc string) (*Product, error) {
	for _, p := range m.products {
		if p.NDC == ndc {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("product")
}

func (m *mockProductRepo) Update(_ context.Context, p *Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return apperr.NotFound("product")
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *mockProductRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p, ok := m.products[id]
	if !ok {
		return apperr.NotFound("product")
	}
	p.Active = active
	return nil
}

func (m *mockProductRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Product, int, error) {
	var items []*Product
	for _, p := range m.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func TestCreateProduct_Valid(t *testing.T) {
	svc := NewService(newMockProductRepo())
	p := &Product{Name: "Amoxicillin 500mg", NDC: "0093-4155-73", Price: 12.50, RequiresPrescription: true}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected generated id")
	}
	if !p.Active {
		t.Error("new product should be active")
	}
	if p.ControlledSchedule != ScheduleNone {
		t.Errorf("schedule defaulted to %q, want %q", p.ControlledSchedule, ScheduleNone)
	}
}

func TestCreateProduct_Invalid(t *testing.T) {
	svc := NewService(newMockProductRepo())
	cases := []struct {
		name    string
		product Product
	}{
		{"missing name", Product{NDC: "0093-4155-73", Price: 1}},
		{"missing ndc", Product{Name: "X", Price: 1}},
		{"negative price", Product{Name: "X", NDC: "0093-4155-73", Price: -1}},
		{"bad schedule", Product{Name: "X", NDC: "0093-4155-73", Price: 1, ControlledSchedule: "VI"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Create(context.Background(), &tc.product)
			if !apperr.Is(err, apperr.CodeValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestCreateProduct_ControlledForcesPrescription(t *testing.T) {
	svc := NewService(newMockProductRepo())
	p := &Product{Name: "Oxycodone 5mg", NDC: "0406-0552-01", Price: 25, ControlledSchedule: ScheduleII}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !p.RequiresPrescription {
		t.Error("schedule II product must require a prescription")
	}
}

func TestRetireProduct(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewService(repo)
	p := &Product{Name: "Ibuprofen 200mg", NDC: "0573-0164-40", Price: 8}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Retire(context.Background(), p.ID); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	got, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Active {
		t.Error("retired product should be inactive")
	}
}

func TestListProducts_InvalidScheduleFilter(t *testing.T) {
	svc := NewService(newMockProductRepo())
	_, _, err := svc.List(context.Background(), ListFilter{Schedule: "I"}, 20, 0)
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}
