package prescriber

import (
	"time"

	"github.com/google/uuid"
)

// Prescriber is a licensed practitioner who may originate prescriptions.
// DEA fields are only present for practitioners registered to prescribe
// controlled substances.
type Prescriber struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	NPI                 string     `db:"npi" json:"npi"`
	LicenseNumber       string     `db:"license_number" json:"license_number"`
	LicenseState        string     `db:"license_state" json:"license_state"`
	LicenseExpiry       *time.Time `db:"license_expiry" json:"license_expiry,omitempty"`
	DEANumber           *string    `db:"dea_number" json:"dea_number,omitempty"`
	DEAExpiry           *time.Time `db:"dea_expiry" json:"dea_expiry,omitempty"`
	AuthorizedSchedules []string   `db:"authorized_schedules" json:"authorized_schedules"`
	Active              bool       `db:"active" json:"active"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// CanPrescribe reports whether the prescriber may originate any
// prescription at all. Missing or expired credentials deny; there is no
// default-allow path.
func (p *Prescriber) CanPrescribe(now time.Time) bool {
	if p == nil || !p.Active {
		return false
	}
	if p.NPI == "" || p.LicenseNumber == "" {
		return false
	}
	if p.LicenseExpiry == nil || !p.LicenseExpiry.After(now) {
		return false
	}
	return true
}

// CanPrescribeControlledSubstances reports whether the prescriber holds a
// current DEA registration with at least one authorized schedule.
func (p *Prescriber) CanPrescribeControlledSubstances(now time.Time) bool {
	if !p.CanPrescribe(now) {
		return false
	}
	if p.DEANumber == nil || *p.DEANumber == "" {
		return false
	}
	if p.DEAExpiry == nil || !p.DEAExpiry.After(now) {
		return false
	}
	return len(p.AuthorizedSchedules) > 0
}

// CanPrescribeSchedule reports whether the prescriber may prescribe a drug
// of the given schedule. "none" and "" only require base prescribing
// authority; II through V additionally require DEA authorization naming
// that schedule.
func (p *Prescriber) CanPrescribeSchedule(schedule string, now time.Time) bool {
	if schedule == "" || schedule == "none" {
		return p.CanPrescribe(now)
	}
	if !p.CanPrescribeControlledSubstances(now) {
		return false
	}
	for _, s := range p.AuthorizedSchedules {
		if s == schedule {
			return true
		}
	}
	return false
}
