package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
	"github.com/pharmacart/pharmacart/internal/platform/db"
)

// ProductInfo is the catalog snapshot intake needs. The catalog service is
// bridged in through an adapter at wiring time.
type ProductInfo struct {
	ID                   uuid.UUID
	Name                 string
	NDC                  string
	ControlledSchedule   string
	RequiresPrescription bool
	RequiresConsultation bool
	Active               bool
}

type ProductSource interface {
	Product(ctx context.Context, id uuid.UUID) (*ProductInfo, error)
}

// PrescriberSource evaluates prescribing authority. Denial is final here;
// there is no fallback that grants access.
type PrescriberSource interface {
	CanPrescribeSchedule(ctx context.Context, id uuid.UUID, schedule string) (bool, error)
}

type Service struct {
	prescriptions PrescriptionRepository
	audit         AuditLogRepository
	screening     ScreeningRepository
	products      ProductSource
	prescribers   PrescriberSource
	tx            db.TxRunner
	now           func() time.Time
}

func NewService(
	prescriptions PrescriptionRepository,
	audit AuditLogRepository,
	screening ScreeningRepository,
	products ProductSource,
	prescribers PrescriberSource,
	tx db.TxRunner,
) *Service {
	return &Service{
		prescriptions: prescriptions,
		audit:         audit,
		screening:     screening,
		products:      products,
		prescribers:   prescribers,
		tx:            tx,
		now:           time.Now,
	}
}

// Prescriptions are valid for one year from issue; schedule II for six
// months, which also cannot carry refills.
func (s *Service) expiry(schedule string, issued time.Time) time.Time {
	if schedule == "II" {
		return issued.AddDate(0, 6, 0)
	}
	return issued.AddDate(1, 0, 0)
}

// Create runs intake for a new prescription. The prescriber authorization
// gate runs before any row is written; an unauthorized prescriber means the
// prescription never existed, not that it was rejected.
func (s *Service) Create(ctx context.Context, p *Prescription, actorID string) error {
	if p.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required").WithField("patient_id", "required")
	}
	if p.PrescriberID == uuid.Nil {
		return apperr.Validation("prescriber_id is required").WithField("prescriber_id", "required")
	}
	if p.ProductID == uuid.Nil {
		return apperr.Validation("product_id is required").WithField("product_id", "required")
	}
	if p.Quantity <= 0 {
		return apperr.Validation("quantity must be positive").WithField("quantity", "must be > 0")
	}
	if p.DaysSupply <= 0 {
		return apperr.Validation("days_supply must be positive").WithField("days_supply", "must be > 0")
	}
	if p.RefillsAuthorized < 0 {
		return apperr.Validation("refills_authorized must not be negative").WithField("refills_authorized", "must be >= 0")
	}
	if p.IntakeSource == "" {
		p.IntakeSource = SourceUpload
	}
	if !ValidSources[p.IntakeSource] {
		return apperr.Validation("invalid intake source: %s", p.IntakeSource).
			WithField("intake_source", "must be one of upload, fax, escript, phone")
	}
	if p.Priority == "" {
		p.Priority = PriorityRoutine
	}
	if p.Priority != PriorityRoutine && p.Priority != PriorityUrgent {
		return apperr.Validation("invalid priority: %s", p.Priority).
			WithField("priority", "must be routine or urgent")
	}

	product, err := s.products.Product(ctx, p.ProductID)
	if err != nil {
		return err
	}
	if !product.Active {
		return apperr.Validation("product %s is no longer available", product.Name)
	}
	p.MedicationName = product.Name
	p.NDC = product.NDC
	p.ControlledSchedule = product.ControlledSchedule
	p.ConsultationRequired = product.RequiresConsultation

	if p.ControlledSchedule == "II" && p.RefillsAuthorized > 0 {
		return apperr.Validation("schedule II prescriptions cannot authorize refills").
			WithField("refills_authorized", "must be 0 for schedule II")
	}

	authorized, err := s.prescribers.CanPrescribeSchedule(ctx, p.PrescriberID, p.ControlledSchedule)
	if err != nil {
		return err
	}
	if !authorized {
		if p.ControlledSchedule != "" && p.ControlledSchedule != "none" {
			return apperr.Validation("prescriber is not authorized to prescribe controlled substances").
				WithField("prescriber_id", "lacks schedule "+p.ControlledSchedule+" authorization")
		}
		return apperr.Validation("prescriber is not authorized to prescribe").
			WithField("prescriber_id", "missing or expired credentials")
	}

	now := s.now()
	p.VerificationStatus = StatusPending
	p.ProcessingStatus = ProcessingReceived
	p.RefillsRemaining = p.RefillsAuthorized
	p.IsRefill = false
	p.OriginalID = nil
	p.ConsultationCompleted = false
	p.ExpiresAt = s.expiry(p.ControlledSchedule, now)

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		_, err := s.audit.LogEvent(ctx, p.ID, ActionCreated, actorID,
			fmt.Sprintf("prescription created for %s via %s intake", p.MedicationName, p.IntakeSource))
		return err
	})
}

// StartReview moves a pending prescription into review and records the
// reviewer.
func (s *Service) StartReview(ctx context.Context, id uuid.UUID, actorID string) (*Prescription, error) {
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.VerificationStatus != StatusPending {
			return apperr.StateConflict("cannot start review from status %s", p.VerificationStatus)
		}
		now := s.now()
		p.VerificationStatus = StatusInReview
		p.ProcessingStatus = ProcessingReviewing
		p.ReviewedBy = &actorID
		p.ReviewedAt = &now
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, p.ID, ActionReviewed, actorID, "pharmacist review started")
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// VerifyRequest carries the pharmacist's review decision.
type VerifyRequest struct {
	Action    string          `json:"action"` // verify, reject, hold
	Notes     string          `json:"notes"`
	Checklist []ChecklistItem `json:"checklist"`
}

// errVerificationFailed aborts the review transaction when the engine
// reports issues. Nothing was mutated at that point; the caller surfaces
// the issue list instead of an error.
var errVerificationFailed = errors.New("verification failed")

// Verify applies the pharmacist's decision. For the "verify" action the
// verification engine must pass; its full issue list comes back on failure
// and the prescription is left untouched, with no audit row. reject and
// hold require a reason in Notes.
func (s *Service) Verify(ctx context.Context, id uuid.UUID, req VerifyRequest, actorID string) (*Prescription, *VerifyResult, error) {
	if req.Action != "verify" && req.Action != "reject" && req.Action != "hold" {
		return nil, nil, apperr.Validation("invalid action: %s", req.Action).
			WithField("action", "must be verify, reject, or hold")
	}
	if (req.Action == "reject" || req.Action == "hold") && req.Notes == "" {
		return nil, nil, apperr.Validation("%s requires a reason", req.Action).
			WithField("notes", "required")
	}

	var p *Prescription
	var result *VerifyResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.VerificationStatus != StatusPending && p.VerificationStatus != StatusInReview {
			return apperr.StateConflict("cannot %s from status %s", req.Action, p.VerificationStatus)
		}

		now := s.now()
		switch req.Action {
		case "reject":
			p.VerificationStatus = StatusRejected
			p.ReviewNotes = &req.Notes
			if err := s.prescriptions.Update(ctx, p); err != nil {
				return err
			}
			_, err = s.audit.LogEvent(ctx, p.ID, ActionRejected, actorID, "rejected: "+req.Notes)
			return err

		case "hold":
			p.VerificationStatus = StatusOnHold
			p.ReviewNotes = &req.Notes
			if err := s.prescriptions.Update(ctx, p); err != nil {
				return err
			}
			_, err = s.audit.LogEvent(ctx, p.ID, ActionOnHold, actorID, "placed on hold: "+req.Notes)
			return err
		}

		authorized, err := s.prescribers.CanPrescribeSchedule(ctx, p.PrescriberID, p.ControlledSchedule)
		if err != nil {
			return err
		}
		interactions, err := s.screening.InteractionsFor(ctx, p.PatientID, p.NDC)
		if err != nil {
			return err
		}
		allergies, err := s.screening.AllergiesFor(ctx, p.PatientID, p.NDC)
		if err != nil {
			return err
		}

		r := VerifyPrescription(VerifyInput{
			PrescriberAuthorized: authorized,
			MedicationName:       p.MedicationName,
			Schedule:             p.ControlledSchedule,
			Interactions:         interactions,
			Allergies:            allergies,
			Checklist:            req.Checklist,
		})
		result = &r
		if !r.Success {
			return errVerificationFailed
		}

		p.VerificationStatus = StatusVerified
		p.ProcessingStatus = ProcessingReady
		if req.Notes != "" {
			p.ReviewNotes = &req.Notes
		}
		if p.ReviewedBy == nil {
			p.ReviewedBy = &actorID
			p.ReviewedAt = &now
		}
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, p.ID, ActionVerified, actorID, "verification passed")
		return err
	})
	if errors.Is(err, errVerificationFailed) {
		return p, result, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return p, result, nil
}

// DispenseRequest carries the dispensing details recorded on fulfillment.
type DispenseRequest struct {
	LotNumber      string    `json:"lot_number"`
	ExpirationDate time.Time `json:"expiration_date"`
	Manufacturer   string    `json:"manufacturer"`
	NDC            string    `json:"ndc"`
}

// Dispense fulfills a verified prescription. Dispensing is terminal for
// the row; refills go through Refill and spawn new rows.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID, req DispenseRequest, actorID string) (*Prescription, error) {
	if req.LotNumber == "" {
		return nil, apperr.Validation("lot_number is required").WithField("lot_number", "required")
	}
	if req.Manufacturer == "" {
		return nil, apperr.Validation("manufacturer is required").WithField("manufacturer", "required")
	}
	if req.NDC == "" {
		return nil, apperr.Validation("ndc is required").WithField("ndc", "required")
	}
	if !req.ExpirationDate.After(s.now()) {
		return nil, apperr.Validation("expiration_date must be in the future").
			WithField("expiration_date", "must be a future date")
	}

	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.ProcessingStatus == ProcessingDispensed {
			return apperr.StateConflict("prescription is already dispensed")
		}
		if p.VerificationStatus != StatusVerified {
			return apperr.StateConflict("cannot dispense from status %s; prescription must be verified", p.VerificationStatus)
		}
		if p.ConsultationRequired && !p.ConsultationCompleted {
			return apperr.StateConflict("patient consultation must be completed before dispensing")
		}

		now := s.now()
		p.ProcessingStatus = ProcessingDispensed
		p.DispensedLotNumber = &req.LotNumber
		p.DispensedExpiry = &req.ExpirationDate
		p.DispensedManufacturer = &req.Manufacturer
		p.DispensedNDC = &req.NDC
		p.DispensedBy = &actorID
		p.DispensedAt = &now
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, p.ID, ActionDispensed, actorID,
			fmt.Sprintf("dispensed lot %s (ndc %s)", req.LotNumber, req.NDC))
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// patientOwns gates the patient-initiated operations. Staff actors may act
// on any prescription; patients only on their own, and an actor ID that is
// not a patient UUID matches nothing.
func patientOwns(p *Prescription, actor auth.Actor) error {
	if actor.Staff {
		return nil
	}
	pid, err := uuid.Parse(actor.ID)
	if err != nil || pid != p.PatientID {
		return apperr.Authorization("prescription belongs to another patient")
	}
	return nil
}

// Refill spawns a new pending prescription from a verified original and
// decrements the original's remaining refills in the same transaction, so
// the count can never be skipped by a forgetful caller. The original is
// otherwise untouched. Refill rows carry no refill authorization of their
// own; further refills always go through the original.
func (s *Service) Refill(ctx context.Context, id uuid.UUID, actor auth.Actor) (*Prescription, error) {
	var refill *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		orig, err := s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := patientOwns(orig, actor); err != nil {
			return err
		}
		if orig.VerificationStatus != StatusVerified {
			return apperr.StateConflict("cannot refill from status %s", orig.VerificationStatus)
		}
		if orig.RefillsRemaining <= 0 {
			return apperr.StateConflict("no refills remaining")
		}

		refill = &Prescription{
			PatientID:            orig.PatientID,
			PrescriberID:         orig.PrescriberID,
			ProductID:            orig.ProductID,
			MedicationName:       orig.MedicationName,
			NDC:                  orig.NDC,
			Quantity:             orig.Quantity,
			DaysSupply:           orig.DaysSupply,
			ControlledSchedule:   orig.ControlledSchedule,
			VerificationStatus:   StatusPending,
			ProcessingStatus:     ProcessingReceived,
			Priority:             orig.Priority,
			IntakeSource:         orig.IntakeSource,
			IsRefill:             true,
			OriginalID:           &orig.ID,
			ConsultationRequired: orig.ConsultationRequired,
			ExpiresAt:            orig.ExpiresAt,
		}
		if err := s.prescriptions.Create(ctx, refill); err != nil {
			return err
		}

		orig.RefillsRemaining--
		if err := s.prescriptions.Update(ctx, orig); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, orig.ID, ActionRefilled, actor.ID,
			fmt.Sprintf("refill %s created; %d refills remaining", refill.ID, orig.RefillsRemaining))
		return err
	})
	if err != nil {
		return nil, err
	}
	return refill, nil
}

// Cancel voids a prescription from any state except dispensed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor auth.Actor) (*Prescription, error) {
	if reason == "" {
		return nil, apperr.Validation("cancellation requires a reason").WithField("reason", "required")
	}
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := patientOwns(p, actor); err != nil {
			return err
		}
		if p.ProcessingStatus == ProcessingDispensed {
			return apperr.StateConflict("cannot cancel a dispensed prescription")
		}
		if p.VerificationStatus == StatusCancelled {
			return apperr.StateConflict("prescription is already cancelled")
		}
		p.VerificationStatus = StatusCancelled
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, p.ID, ActionCancelled, actor.ID, "cancelled: "+reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteConsultation records that the mandatory patient consultation
// took place, unblocking dispense for consultation-required products.
func (s *Service) CompleteConsultation(ctx context.Context, id uuid.UUID, actorID string) (*Prescription, error) {
	var p *Prescription
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.prescriptions.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.IsTerminal() {
			return apperr.StateConflict("cannot record consultation on a %s prescription", p.VerificationStatus)
		}
		if p.ConsultationCompleted {
			return apperr.StateConflict("consultation is already recorded")
		}
		p.ConsultationCompleted = true
		if err := s.prescriptions.Update(ctx, p); err != nil {
			return err
		}
		_, err = s.audit.LogEvent(ctx, p.ID, ActionConsultation, actorID, "patient consultation completed")
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.List(ctx, filter, limit, offset)
}

func (s *Service) ListRefills(ctx context.Context, originalID uuid.UUID) ([]*Prescription, error) {
	if _, err := s.prescriptions.GetByID(ctx, originalID); err != nil {
		return nil, err
	}
	return s.prescriptions.ListRefills(ctx, originalID)
}

func (s *Service) ListAuditLog(ctx context.Context, id uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	if _, err := s.prescriptions.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.audit.ListByPrescription(ctx, id, limit, offset)
}

// UsableForPurchase resolves a prescription and reports whether checkout
// may rely on it right now. The cart totals calculator calls this through
// an adapter.
func (s *Service) UsableForPurchase(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.UsableForPurchase(s.now()), nil
}
