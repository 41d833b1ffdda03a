package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Controlled-substance schedules per the DEA classification. Schedule I
// substances have no accepted medical use and never appear in the catalog.
const (
	ScheduleNone = "none"
	ScheduleII   = "II"
	ScheduleIII  = "III"
	ScheduleIV   = "IV"
	ScheduleV    = "V"
)

var ValidSchedules = map[string]bool{
	ScheduleNone: true,
	ScheduleII:   true,
	ScheduleIII:  true,
	ScheduleIV:   true,
	ScheduleV:    true,
}

// Product is a dispensable catalog entry, either an OTC item or a
// prescription medication identified by its NDC.
type Product struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Description          *string   `db:"description" json:"description,omitempty"`
	NDC                  string    `db:"ndc" json:"ndc"`
	Manufacturer         *string   `db:"manufacturer" json:"manufacturer,omitempty"`
	Price                float64   `db:"price" json:"price"`
	ControlledSchedule   string    `db:"controlled_schedule" json:"controlled_schedule"`
	RequiresPrescription bool      `db:"requires_prescription" json:"requires_prescription"`
	RequiresConsultation bool      `db:"requires_consultation" json:"requires_consultation"`
	Active               bool      `db:"active" json:"active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// IsControlled reports whether the product carries a DEA schedule.
func (p *Product) IsControlled() bool {
	return p.ControlledSchedule != "" && p.ControlledSchedule != ScheduleNone
}
