package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/auth"
)

var asPharmacist = auth.Actor{ID: "pharmacist-1", Staff: true}

// --- mocks ---

type mockPrescriptionRepo struct {
	prescriptions map[uuid.UUID]*Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{prescriptions: map[uuid.UUID]*Prescription{}}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.prescriptions[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, apperr.NotFound("prescription")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrescriptionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return m.GetByID(ctx, id)
}

func (m *mockPrescriptionRepo) Update(_ context.Context, p *Prescription) error {
	if _, ok := m.prescriptions[p.ID]; !ok {
		return apperr.NotFound("prescription")
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.prescriptions[p.ID] = &cp
	return nil
}

func (m *mockPrescriptionRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	var items []*Prescription
	for _, p := range m.prescriptions {
		cp := *p
		items = append(items, &cp)
	}
	return items, len(items), nil
}

func (m *mockPrescriptionRepo) ListRefills(_ context.Context, originalID uuid.UUID) ([]*Prescription, error) {
	var items []*Prescription
	for _, p := range m.prescriptions {
		if p.OriginalID != nil && *p.OriginalID == originalID {
			cp := *p
			items = append(items, &cp)
		}
	}
	return items, nil
}

type mockAuditRepo struct {
	entries []*AuditLog
	failing bool
}

func (m *mockAuditRepo) LogEvent(_ context.Context, prescriptionID uuid.UUID, action, actorID, description string) (*AuditLog, error) {
	if m.failing {
		return nil, apperr.Storage("write audit log", context.DeadlineExceeded)
	}
	e := &AuditLog{
		ID:             uuid.New(),
		PrescriptionID: prescriptionID,
		Action:         action,
		ActorID:        actorID,
		Description:    description,
		CreatedAt:      time.Now(),
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *mockAuditRepo) ListByPrescription(_ context.Context, prescriptionID uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	var items []*AuditLog
	for _, e := range m.entries {
		if e.PrescriptionID == prescriptionID {
			items = append(items, e)
		}
	}
	return items, len(items), nil
}

func (m *mockAuditRepo) countFor(id uuid.UUID, action string) int {
	n := 0
	for _, e := range m.entries {
		if e.PrescriptionID == id && e.Action == action {
			n++
		}
	}
	return n
}

type mockScreening struct {
	interactions []Interaction
	allergies    []Allergy
}

func (m *mockScreening) InteractionsFor(_ context.Context, _ uuid.UUID, _ string) ([]Interaction, error) {
	return m.interactions, nil
}

func (m *mockScreening) AllergiesFor(_ context.Context, _ uuid.UUID, _ string) ([]Allergy, error) {
	return m.allergies, nil
}

type mockProductSource struct {
	products map[uuid.UUID]*ProductInfo
}

func (m *mockProductSource) Product(_ context.Context, id uuid.UUID) (*ProductInfo, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("product")
	}
	return p, nil
}

type mockPrescriberSource struct {
	authorized map[string]bool // keyed by schedule
}

func (m *mockPrescriberSource) CanPrescribeSchedule(_ context.Context, _ uuid.UUID, schedule string) (bool, error) {
	if schedule == "" {
		schedule = "none"
	}
	return m.authorized[schedule], nil
}

// passthroughTx satisfies db.TxRunner without a database. Transactional
// atomicity itself is exercised against postgres; these tests cover the
// lifecycle guards and audit bookkeeping.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- fixture ---

type fixture struct {
	svc         *Service
	repo        *mockPrescriptionRepo
	audit       *mockAuditRepo
	screening   *mockScreening
	products    *mockProductSource
	prescribers *mockPrescriberSource
	productID   uuid.UUID
}

func newFixture() *fixture {
	productID := uuid.New()
	f := &fixture{
		repo:      newMockPrescriptionRepo(),
		audit:     &mockAuditRepo{},
		screening: &mockScreening{},
		products: &mockProductSource{products: map[uuid.UUID]*ProductInfo{
			productID: {
				ID:                   productID,
				Name:                 "Lisinopril 10mg",
				NDC:                  "0143-1240-01",
				ControlledSchedule:   "none",
				RequiresPrescription: true,
				Active:               true,
			},
		}},
		prescribers: &mockPrescriberSource{authorized: map[string]bool{"none": true}},
		productID:   productID,
	}
	f.svc = NewService(f.repo, f.audit, f.screening, f.products, f.prescribers, passthroughTx{})
	return f
}

func (f *fixture) create(t *testing.T) *Prescription {
	t.Helper()
	p := &Prescription{
		PatientID:         uuid.New(),
		PrescriberID:      uuid.New(),
		ProductID:         f.productID,
		Quantity:          30,
		DaysSupply:        30,
		RefillsAuthorized: 3,
	}
	if err := f.svc.Create(context.Background(), p, "pharmacist-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return p
}

func (f *fixture) verified(t *testing.T) *Prescription {
	t.Helper()
	p := f.create(t)
	if _, err := f.svc.StartReview(context.Background(), p.ID, "pharmacist-1"); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	p2, result, err := f.svc.Verify(context.Background(), p.ID, VerifyRequest{Action: "verify"}, "pharmacist-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Success {
		t.Fatalf("Verify issues: %v", result.Issues)
	}
	return p2
}

// --- intake ---

func TestCreate_Defaults(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	if p.VerificationStatus != StatusPending || p.ProcessingStatus != ProcessingReceived {
		t.Errorf("statuses = %s/%s, want pending/received", p.VerificationStatus, p.ProcessingStatus)
	}
	if p.RefillsRemaining != 3 {
		t.Errorf("refills_remaining = %d, want 3", p.RefillsRemaining)
	}
	if p.MedicationName != "Lisinopril 10mg" || p.NDC != "0143-1240-01" {
		t.Error("product descriptor not snapshotted onto the prescription")
	}
	if !p.ExpiresAt.After(time.Now()) {
		t.Error("expiry should be in the future")
	}
	if got := f.audit.countFor(p.ID, ActionCreated); got != 1 {
		t.Errorf("created audit rows = %d, want 1", got)
	}
}

func TestCreate_UnauthorizedControlledSchedule(t *testing.T) {
	f := newFixture()
	oxyID := uuid.New()
	f.products.products[oxyID] = &ProductInfo{
		ID: oxyID, Name: "Oxycodone 5mg", NDC: "0406-0552-01",
		ControlledSchedule: "II", RequiresPrescription: true, Active: true,
	}

	p := &Prescription{
		PatientID: uuid.New(), PrescriberID: uuid.New(), ProductID: oxyID,
		Quantity: 30, DaysSupply: 30,
	}
	err := f.svc.Create(context.Background(), p, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
	if len(f.repo.prescriptions) != 0 {
		t.Error("no prescription row may be written when the prescriber gate denies")
	}
	if len(f.audit.entries) != 0 {
		t.Error("no audit row may be written when creation fails")
	}
}

func TestCreate_ScheduleIIRefillsRejected(t *testing.T) {
	f := newFixture()
	oxyID := uuid.New()
	f.products.products[oxyID] = &ProductInfo{
		ID: oxyID, Name: "Oxycodone 5mg", NDC: "0406-0552-01",
		ControlledSchedule: "II", RequiresPrescription: true, Active: true,
	}
	f.prescribers.authorized["II"] = true

	p := &Prescription{
		PatientID: uuid.New(), PrescriberID: uuid.New(), ProductID: oxyID,
		Quantity: 30, DaysSupply: 30, RefillsAuthorized: 2,
	}
	err := f.svc.Create(context.Background(), p, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestCreate_AuditFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.audit.failing = true
	p := &Prescription{
		PatientID: uuid.New(), PrescriberID: uuid.New(), ProductID: f.productID,
		Quantity: 30, DaysSupply: 30,
	}
	err := f.svc.Create(context.Background(), p, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeStorage) {
		t.Fatalf("got %v, want storage error", err)
	}
}

// --- review and verification ---

func TestStartReview_OnlyFromPending(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	got, err := f.svc.StartReview(context.Background(), p.ID, "pharmacist-1")
	if err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	if got.VerificationStatus != StatusInReview || got.ProcessingStatus != ProcessingReviewing {
		t.Errorf("statuses = %s/%s, want in_review/reviewing", got.VerificationStatus, got.ProcessingStatus)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != "pharmacist-1" {
		t.Error("reviewer not recorded")
	}

	_, err = f.svc.StartReview(context.Background(), p.ID, "pharmacist-2")
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("second StartReview: got %v, want state conflict", err)
	}
	if got := f.audit.countFor(p.ID, ActionReviewed); got != 1 {
		t.Errorf("reviewed audit rows = %d, want 1", got)
	}
}

func TestVerify_EngineFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	p := f.create(t)
	f.screening.allergies = []Allergy{{Substance: "lisinopril", Reaction: "angioedema"}}

	got, result, err := f.svc.Verify(context.Background(), p.ID, VerifyRequest{Action: "verify"}, "pharmacist-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Success {
		t.Fatal("expected engine failure")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("issues = %v, want 1 allergy issue", result.Issues)
	}
	if got.VerificationStatus != StatusPending {
		t.Errorf("status = %s, want pending (unchanged)", got.VerificationStatus)
	}
	stored, _ := f.repo.GetByID(context.Background(), p.ID)
	if stored.VerificationStatus != StatusPending {
		t.Errorf("stored status = %s, want pending", stored.VerificationStatus)
	}
	if n := f.audit.countFor(p.ID, ActionVerified); n != 0 {
		t.Errorf("verified audit rows = %d, want 0", n)
	}
}

func TestVerify_Success(t *testing.T) {
	f := newFixture()
	p := f.verified(t)

	if p.VerificationStatus != StatusVerified || p.ProcessingStatus != ProcessingReady {
		t.Errorf("statuses = %s/%s, want verified/ready", p.VerificationStatus, p.ProcessingStatus)
	}
	if n := f.audit.countFor(p.ID, ActionVerified); n != 1 {
		t.Errorf("verified audit rows = %d, want 1", n)
	}
}

func TestVerify_RejectRequiresReason(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	_, _, err := f.svc.Verify(context.Background(), p.ID, VerifyRequest{Action: "reject"}, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Fatalf("got %v, want validation error", err)
	}

	got, _, err := f.svc.Verify(context.Background(), p.ID,
		VerifyRequest{Action: "reject", Notes: "illegible quantity"}, "pharmacist-1")
	if err != nil {
		t.Fatalf("Verify reject: %v", err)
	}
	if got.VerificationStatus != StatusRejected {
		t.Errorf("status = %s, want rejected", got.VerificationStatus)
	}
	if n := f.audit.countFor(p.ID, ActionRejected); n != 1 {
		t.Errorf("rejected audit rows = %d, want 1", n)
	}
}

func TestVerify_FromVerifiedConflicts(t *testing.T) {
	f := newFixture()
	p := f.verified(t)
	_, _, err := f.svc.Verify(context.Background(), p.ID, VerifyRequest{Action: "verify"}, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("got %v, want state conflict", err)
	}
}

// --- dispense ---

func dispenseReq() DispenseRequest {
	return DispenseRequest{
		LotNumber:      "LOT-2231",
		ExpirationDate: time.Now().AddDate(1, 0, 0),
		Manufacturer:   "Teva",
		NDC:            "0143-1240-01",
	}
}

func TestDispense_RequiresVerified(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	_, err := f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1")
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Fatalf("got %v, want state conflict", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), p.ID)
	if stored.ProcessingStatus != ProcessingReceived {
		t.Errorf("stored status = %s, want received (unchanged)", stored.ProcessingStatus)
	}
	if n := f.audit.countFor(p.ID, ActionDispensed); n != 0 {
		t.Errorf("dispensed audit rows = %d, want 0", n)
	}
}

func TestDispense_Success(t *testing.T) {
	f := newFixture()
	p := f.verified(t)

	got, err := f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1")
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if got.ProcessingStatus != ProcessingDispensed {
		t.Errorf("processing = %s, want dispensed", got.ProcessingStatus)
	}
	if got.DispensedLotNumber == nil || *got.DispensedLotNumber != "LOT-2231" {
		t.Error("lot number not recorded")
	}
	if n := f.audit.countFor(p.ID, ActionDispensed); n != 1 {
		t.Errorf("dispensed audit rows = %d, want 1", n)
	}

	_, err = f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1")
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("second dispense: got %v, want state conflict", err)
	}
}

func TestDispense_ExpiredLotRejected(t *testing.T) {
	f := newFixture()
	p := f.verified(t)
	req := dispenseReq()
	req.ExpirationDate = time.Now().AddDate(0, 0, -1)
	_, err := f.svc.Dispense(context.Background(), p.ID, req, "pharmacist-1")
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestDispense_ConsultationGate(t *testing.T) {
	f := newFixture()
	f.products.products[f.productID].RequiresConsultation = true
	p := f.verified(t)

	_, err := f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1")
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Fatalf("got %v, want state conflict before consultation", err)
	}

	if _, err := f.svc.CompleteConsultation(context.Background(), p.ID, "pharmacist-1"); err != nil {
		t.Fatalf("CompleteConsultation: %v", err)
	}
	if n := f.audit.countFor(p.ID, ActionConsultation); n != 1 {
		t.Errorf("consultation audit rows = %d, want 1", n)
	}

	if _, err := f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1"); err != nil {
		t.Fatalf("Dispense after consultation: %v", err)
	}
}

// --- refill ---

func TestRefill_SpawnsPendingRowAndDecrements(t *testing.T) {
	f := newFixture()
	p := f.verified(t)

	refill, err := f.svc.Refill(context.Background(), p.ID, asPharmacist)
	if err != nil {
		t.Fatalf("Refill: %v", err)
	}
	if !refill.IsRefill {
		t.Error("is_refill not set")
	}
	if refill.OriginalID == nil || *refill.OriginalID != p.ID {
		t.Error("original_id not set")
	}
	if refill.VerificationStatus != StatusPending || refill.ProcessingStatus != ProcessingReceived {
		t.Errorf("refill statuses = %s/%s, want pending/received", refill.VerificationStatus, refill.ProcessingStatus)
	}
	if refill.RefillsAuthorized != 0 || refill.RefillsRemaining != 0 {
		t.Error("refill rows must not carry their own refill authorization")
	}

	orig, _ := f.repo.GetByID(context.Background(), p.ID)
	if orig.RefillsRemaining != 2 {
		t.Errorf("original refills_remaining = %d, want 2", orig.RefillsRemaining)
	}
	if orig.VerificationStatus != StatusVerified {
		t.Error("original status must not change on refill")
	}
	if n := f.audit.countFor(p.ID, ActionRefilled); n != 1 {
		t.Errorf("refilled audit rows on original = %d, want 1", n)
	}

	refills, err := f.svc.ListRefills(context.Background(), p.ID)
	if err != nil || len(refills) != 1 {
		t.Errorf("ListRefills = (%d, %v), want 1 row", len(refills), err)
	}
}

func TestRefill_ExhaustedConflicts(t *testing.T) {
	f := newFixture()
	p := f.verified(t)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Refill(context.Background(), p.ID, asPharmacist); err != nil {
			t.Fatalf("Refill %d: %v", i, err)
		}
	}
	_, err := f.svc.Refill(context.Background(), p.ID, asPharmacist)
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("got %v, want state conflict when refills are exhausted", err)
	}
}

func TestRefill_RequiresVerified(t *testing.T) {
	f := newFixture()
	p := f.create(t)
	_, err := f.svc.Refill(context.Background(), p.ID, asPharmacist)
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("got %v, want state conflict", err)
	}
}

func TestRefill_PatientOwnershipEnforced(t *testing.T) {
	f := newFixture()
	p := f.verified(t)

	_, err := f.svc.Refill(context.Background(), p.ID, auth.Actor{ID: uuid.NewString()})
	if !apperr.Is(err, apperr.CodeAuthorization) {
		t.Errorf("refill by another patient: got %v, want authorization error", err)
	}
	_, err = f.svc.Refill(context.Background(), p.ID, auth.Actor{ID: "not-a-uuid"})
	if !apperr.Is(err, apperr.CodeAuthorization) {
		t.Errorf("refill by non-patient subject: got %v, want authorization error", err)
	}

	refill, err := f.svc.Refill(context.Background(), p.ID, auth.Actor{ID: p.PatientID.String()})
	if err != nil {
		t.Fatalf("refill by owning patient: %v", err)
	}
	if refill.PatientID != p.PatientID {
		t.Error("refill patient must match the original")
	}
}

// --- cancel ---

func TestCancel(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	_, err := f.svc.Cancel(context.Background(), p.ID, "", asPharmacist)
	if !apperr.Is(err, apperr.CodeValidation) {
		t.Fatalf("missing reason: got %v, want validation error", err)
	}

	got, err := f.svc.Cancel(context.Background(), p.ID, "patient request", asPharmacist)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.VerificationStatus != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.VerificationStatus)
	}
	if n := f.audit.countFor(p.ID, ActionCancelled); n != 1 {
		t.Errorf("cancelled audit rows = %d, want 1", n)
	}

	_, err = f.svc.Cancel(context.Background(), p.ID, "again", asPharmacist)
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("double cancel: got %v, want state conflict", err)
	}
}

func TestCancel_PatientOwnershipEnforced(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	_, err := f.svc.Cancel(context.Background(), p.ID, "wrong patient", auth.Actor{ID: uuid.NewString()})
	if !apperr.Is(err, apperr.CodeAuthorization) {
		t.Errorf("cancel by another patient: got %v, want authorization error", err)
	}

	got, err := f.svc.Cancel(context.Background(), p.ID, "no longer needed", auth.Actor{ID: p.PatientID.String()})
	if err != nil {
		t.Fatalf("cancel by owning patient: %v", err)
	}
	if got.VerificationStatus != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.VerificationStatus)
	}
}

func TestCancel_DispensedConflicts(t *testing.T) {
	f := newFixture()
	p := f.verified(t)
	if _, err := f.svc.Dispense(context.Background(), p.ID, dispenseReq(), "pharmacist-1"); err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	_, err := f.svc.Cancel(context.Background(), p.ID, "too late", asPharmacist)
	if !apperr.Is(err, apperr.CodeStateConflict) {
		t.Errorf("got %v, want state conflict", err)
	}
}

// --- audit timestamps ---

func TestTransitions_AuditTimestampOrdering(t *testing.T) {
	f := newFixture()
	p := f.verified(t)
	entries, _, err := f.svc.ListAuditLog(context.Background(), p.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListAuditLog: %v", err)
	}
	if len(entries) != 3 { // created, reviewed, verified
		t.Fatalf("audit rows = %d, want 3", len(entries))
	}
	stored, _ := f.repo.GetByID(context.Background(), p.ID)
	for _, e := range entries {
		if e.CreatedAt.After(stored.UpdatedAt.Add(time.Second)) {
			t.Errorf("audit row %s written after prescription settle time", e.Action)
		}
	}
}

// --- purchase gate ---

func TestUsableForPurchase(t *testing.T) {
	f := newFixture()

	pending := f.create(t)
	ok, err := f.svc.UsableForPurchase(context.Background(), pending.ID)
	if err != nil || ok {
		t.Errorf("pending: got (%v, %v), want (false, nil)", ok, err)
	}

	verified := f.verified(t)
	ok, err = f.svc.UsableForPurchase(context.Background(), verified.ID)
	if err != nil || !ok {
		t.Errorf("verified: got (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = f.svc.UsableForPurchase(context.Background(), uuid.New())
	if err != nil || ok {
		t.Errorf("missing: got (%v, %v), want (false, nil)", ok, err)
	}
}
