package prescription

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	PatientID          *uuid.UUID
	VerificationStatus string
	ProcessingStatus   string
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetForUpdate locks the row for the rest of the enclosing transaction.
	// Lifecycle guards are evaluated against the locked row so concurrent
	// transitions on one prescription serialize instead of racing.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Prescription, int, error)
	ListRefills(ctx context.Context, originalID uuid.UUID) ([]*Prescription, error)
}

// AuditLogRepository appends and reads the immutable audit trail. There is
// deliberately no update or delete method.
type AuditLogRepository interface {
	LogEvent(ctx context.Context, prescriptionID uuid.UUID, action, actorID, description string) (*AuditLog, error)
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID, limit, offset int) ([]*AuditLog, int, error)
}

// ScreeningRepository resolves the patient-safety data the verification
// engine screens against.
type ScreeningRepository interface {
	// InteractionsFor returns known interactions between the given NDC and
	// the patient's other active prescriptions.
	InteractionsFor(ctx context.Context, patientID uuid.UUID, ndc string) ([]Interaction, error)
	// AllergiesFor returns documented patient allergies matching the given
	// NDC's substance.
	AllergiesFor(ctx context.Context, patientID uuid.UUID, ndc string) ([]Allergy, error)
}
