package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Verification statuses. pending, in_review, verified, on_hold are live;
// rejected and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusInReview  = "in_review"
	StatusVerified  = "verified"
	StatusRejected  = "rejected"
	StatusOnHold    = "on_hold"
	StatusCancelled = "cancelled"
)

// Processing statuses track fulfillment independently of verification.
const (
	ProcessingReceived  = "received"
	ProcessingReviewing = "reviewing"
	ProcessingReady     = "ready"
	ProcessingDispensed = "dispensed"
)

// Intake sources.
const (
	SourceUpload  = "upload"
	SourceFax     = "fax"
	SourceEScript = "escript"
	SourcePhone   = "phone"
)

var ValidSources = map[string]bool{
	SourceUpload: true, SourceFax: true, SourceEScript: true, SourcePhone: true,
}

const (
	PriorityRoutine = "routine"
	PriorityUrgent  = "urgent"
)

// Prescription is one prescribed medication order. A refill is a new row
// referencing the original through OriginalID; originals are never mutated
// beyond refill bookkeeping.
type Prescription struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patient_id"`
	PrescriberID          uuid.UUID  `db:"prescriber_id" json:"prescriber_id"`
	ProductID             uuid.UUID  `db:"product_id" json:"product_id"`
	MedicationName        string     `db:"medication_name" json:"medication_name"`
	NDC                   string     `db:"ndc" json:"ndc"`
	Quantity              int        `db:"quantity" json:"quantity"`
	DaysSupply            int        `db:"days_supply" json:"days_supply"`
	RefillsAuthorized     int        `db:"refills_authorized" json:"refills_authorized"`
	RefillsRemaining      int        `db:"refills_remaining" json:"refills_remaining"`
	ControlledSchedule    string     `db:"controlled_schedule" json:"controlled_schedule"`
	VerificationStatus    string     `db:"verification_status" json:"verification_status"`
	ProcessingStatus      string     `db:"processing_status" json:"processing_status"`
	Priority              string     `db:"priority" json:"priority"`
	IntakeSource          string     `db:"intake_source" json:"intake_source"`
	IsRefill              bool       `db:"is_refill" json:"is_refill"`
	OriginalID            *uuid.UUID `db:"original_id" json:"original_id,omitempty"`
	ConsultationRequired  bool       `db:"consultation_required" json:"consultation_required"`
	ConsultationCompleted bool       `db:"consultation_completed" json:"consultation_completed"`
	ReviewedBy            *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes           *string    `db:"review_notes" json:"review_notes,omitempty"`
	DispensedLotNumber    *string    `db:"dispensed_lot_number" json:"dispensed_lot_number,omitempty"`
	DispensedExpiry       *time.Time `db:"dispensed_expiry" json:"dispensed_expiry,omitempty"`
	DispensedManufacturer *string    `db:"dispensed_manufacturer" json:"dispensed_manufacturer,omitempty"`
	DispensedNDC          *string    `db:"dispensed_ndc" json:"dispensed_ndc,omitempty"`
	DispensedBy           *string    `db:"dispensed_by" json:"dispensed_by,omitempty"`
	DispensedAt           *time.Time `db:"dispensed_at" json:"dispensed_at,omitempty"`
	ExpiresAt             time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transition other than
// nothing at all may be applied.
func (p *Prescription) IsTerminal() bool {
	return p.ProcessingStatus == ProcessingDispensed ||
		p.VerificationStatus == StatusCancelled ||
		p.VerificationStatus == StatusRejected
}

// UsableForPurchase reports whether a cart line item may rely on this
// prescription at the given time.
func (p *Prescription) UsableForPurchase(now time.Time) bool {
	return p.VerificationStatus == StatusVerified && p.ExpiresAt.After(now)
}

// Audit log action kinds.
const (
	ActionCreated      = "created"
	ActionReviewed     = "reviewed"
	ActionVerified     = "verified"
	ActionRejected     = "rejected"
	ActionOnHold       = "on_hold"
	ActionDispensed    = "dispensed"
	ActionRefilled     = "refilled"
	ActionCancelled    = "cancelled"
	ActionConsultation = "consultation"
)

// AuditLog is one immutable record of a state-changing action against a
// prescription. Rows are append-only and retained for the regulatory audit
// period; there is no update or delete path.
type AuditLog struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PrescriptionID uuid.UUID `db:"prescription_id" json:"prescription_id"`
	Action         string    `db:"action" json:"action"`
	Description    string    `db:"description" json:"description"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
