package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
	"github.com/pharmacart/pharmacart/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, patient_id, prescriber_id, product_id, medication_name, ndc,
	quantity, days_supply, refills_authorized, refills_remaining, controlled_schedule,
	verification_status, processing_status, priority, intake_source,
	is_refill, original_id, consultation_required, consultation_completed,
	reviewed_by, reviewed_at, review_notes,
	dispensed_lot_number, dispensed_expiry, dispensed_manufacturer, dispensed_ndc,
	dispensed_by, dispensed_at, expires_at, created_at, updated_at`

func (r *prescriptionRepoPG) scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.PrescriberID, &p.ProductID, &p.MedicationName, &p.NDC,
		&p.Quantity, &p.DaysSupply, &p.RefillsAuthorized, &p.RefillsRemaining, &p.ControlledSchedule,
		&p.VerificationStatus, &p.ProcessingStatus, &p.Priority, &p.IntakeSource,
		&p.IsRefill, &p.OriginalID, &p.ConsultationRequired, &p.ConsultationCompleted,
		&p.ReviewedBy, &p.ReviewedAt, &p.ReviewNotes,
		&p.DispensedLotNumber, &p.DispensedExpiry, &p.DispensedManufacturer, &p.DispensedNDC,
		&p.DispensedBy, &p.DispensedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, patient_id, prescriber_id, product_id, medication_name, ndc,
			quantity, days_supply, refills_authorized, refills_remaining, controlled_schedule,
			verification_status, processing_status, priority, intake_source,
			is_refill, original_id, consultation_required, consultation_completed, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		p.ID, p.PatientID, p.PrescriberID, p.ProductID, p.MedicationName, p.NDC,
		p.Quantity, p.DaysSupply, p.RefillsAuthorized, p.RefillsRemaining, p.ControlledSchedule,
		p.VerificationStatus, p.ProcessingStatus, p.Priority, p.IntakeSource,
		p.IsRefill, p.OriginalID, p.ConsultationRequired, p.ConsultationCompleted, p.ExpiresAt)
	if err != nil {
		return apperr.Storage("create prescription", err)
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription")
	}
	if err != nil {
		return nil, apperr.Storage("get prescription", err)
	}
	return p, nil
}

func (r *prescriptionRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := r.scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("prescription")
	}
	if err != nil {
		return nil, apperr.Storage("lock prescription", err)
	}
	return p, nil
}

func (r *prescriptionRepoPG) Update(ctx context.Context, p *Prescription) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET
			refills_remaining=$2, verification_status=$3, processing_status=$4, priority=$5,
			consultation_completed=$6, reviewed_by=$7, reviewed_at=$8, review_notes=$9,
			dispensed_lot_number=$10, dispensed_expiry=$11, dispensed_manufacturer=$12,
			dispensed_ndc=$13, dispensed_by=$14, dispensed_at=$15, updated_at=NOW()
		WHERE id=$1`,
		p.ID, p.RefillsRemaining, p.VerificationStatus, p.ProcessingStatus, p.Priority,
		p.ConsultationCompleted, p.ReviewedBy, p.ReviewedAt, p.ReviewNotes,
		p.DispensedLotNumber, p.DispensedExpiry, p.DispensedManufacturer,
		p.DispensedNDC, p.DispensedBy, p.DispensedAt)
	if err != nil {
		return apperr.Storage("update prescription", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("prescription")
	}
	return nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	i := 1
	if filter.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, i)
		args = append(args, *filter.PatientID)
		i++
	}
	if filter.VerificationStatus != "" {
		where += fmt.Sprintf(` AND verification_status = $%d`, i)
		args = append(args, filter.VerificationStatus)
		i++
	}
	if filter.ProcessingStatus != "" {
		where += fmt.Sprintf(` AND processing_status = $%d`, i)
		args = append(args, filter.ProcessingStatus)
		i++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count prescriptions", err)
	}

	query := `SELECT ` + prescriptionCols + ` FROM prescriptions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, i, i+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Storage("list prescriptions", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan prescription", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list prescriptions", err)
	}
	return items, total, nil
}

func (r *prescriptionRepoPG) ListRefills(ctx context.Context, originalID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE original_id = $1 ORDER BY created_at`,
		originalID)
	if err != nil {
		return nil, apperr.Storage("list refills", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := r.scanPrescription(rows)
		if err != nil {
			return nil, apperr.Storage("scan refill", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list refills", err)
	}
	return items, nil
}

// =========== Audit Log Repository ===========

type auditLogRepoPG struct{ pool *pgxpool.Pool }

func NewAuditLogRepoPG(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepoPG{pool: pool}
}

func (r *auditLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// LogEvent appends one audit row. A storage failure here is fatal for the
// enclosing transaction; the state change being recorded rolls back with it.
func (r *auditLogRepoPG) LogEvent(ctx context.Context, prescriptionID uuid.UUID, action, actorID, description string) (*AuditLog, error) {
	entry := AuditLog{
		ID:             uuid.New(),
		PrescriptionID: prescriptionID,
		Action:         action,
		ActorID:        actorID,
		Description:    description,
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_audit_logs (id, prescription_id, action, actor_id, description)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		entry.ID, entry.PrescriptionID, entry.Action, entry.ActorID, entry.Description).
		Scan(&entry.CreatedAt)
	if err != nil {
		return nil, apperr.Storage("write audit log", err)
	}
	return &entry, nil
}

func (r *auditLogRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID, limit, offset int) ([]*AuditLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription_audit_logs WHERE prescription_id = $1`,
		prescriptionID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count audit logs", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, action, description, actor_id, created_at
		FROM prescription_audit_logs
		WHERE prescription_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		prescriptionID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("list audit logs", err)
	}
	defer rows.Close()

	var items []*AuditLog
	for rows.Next() {
		var e AuditLog
		if err := rows.Scan(&e.ID, &e.PrescriptionID, &e.Action, &e.Description, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, 0, apperr.Storage("scan audit log", err)
		}
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list audit logs", err)
	}
	return items, total, nil
}

// =========== Screening Repository ===========

type screeningRepoPG struct{ pool *pgxpool.Pool }

func NewScreeningRepoPG(pool *pgxpool.Pool) ScreeningRepository {
	return &screeningRepoPG{pool: pool}
}

func (r *screeningRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// InteractionsFor screens the candidate NDC against the patient's other
// usable prescriptions.
func (r *screeningRepoPG) InteractionsFor(ctx context.Context, patientID uuid.UUID, ndc string) ([]Interaction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT p.ndc, p.medication_name, di.severity, di.description
		FROM prescriptions p
		JOIN drug_interactions di
			ON (di.ndc_a = $2 AND di.ndc_b = p.ndc)
			OR (di.ndc_b = $2 AND di.ndc_a = p.ndc)
		WHERE p.patient_id = $1
			AND p.ndc <> $2
			AND p.verification_status = 'verified'
			AND p.expires_at > NOW()`,
		patientID, ndc)
	if err != nil {
		return nil, apperr.Storage("screen drug interactions", err)
	}
	defer rows.Close()

	var hits []Interaction
	for rows.Next() {
		var otherNDC string
		var x Interaction
		if err := rows.Scan(&otherNDC, &x.InteractsWith, &x.Severity, &x.Description); err != nil {
			return nil, apperr.Storage("scan drug interaction", err)
		}
		x.NDC = ndc
		hits = append(hits, x)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("screen drug interactions", err)
	}
	return hits, nil
}

func (r *screeningRepoPG) AllergiesFor(ctx context.Context, patientID uuid.UUID, ndc string) ([]Allergy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT substance, reaction
		FROM patient_allergies
		WHERE patient_id = $1 AND ndc = $2`,
		patientID, ndc)
	if err != nil {
		return nil, apperr.Storage("screen allergies", err)
	}
	defer rows.Close()

	var hits []Allergy
	for rows.Next() {
		var a Allergy
		if err := rows.Scan(&a.Substance, &a.Reaction); err != nil {
			return nil, apperr.Storage("scan allergy", err)
		}
		hits = append(hits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("screen allergies", err)
	}
	return hits, nil
}
