package prescriber

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func licensedPrescriber(now time.Time) *Prescriber {
	return &Prescriber{
		FirstName:     "Dana",
		LastName:      "Okafor",
		NPI:           "1234567890",
		LicenseNumber: "MD-44821",
		LicenseState:  "OH",
		LicenseExpiry: timePtr(now.AddDate(1, 0, 0)),
		Active:        true,
	}
}

func deaPrescriber(now time.Time, schedules ...string) *Prescriber {
	p := licensedPrescriber(now)
	p.DEANumber = strPtr("BO1234563")
	p.DEAExpiry = timePtr(now.AddDate(2, 0, 0))
	p.AuthorizedSchedules = schedules
	return p
}

func TestCanPrescribe(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		mutate func(*Prescriber)
		want   bool
	}{
		{"valid license", func(p *Prescriber) {}, true},
		{"inactive", func(p *Prescriber) { p.Active = false }, false},
		{"missing npi", func(p *Prescriber) { p.NPI = "" }, false},
		{"missing license", func(p *Prescriber) { p.LicenseNumber = "" }, false},
		{"nil expiry", func(p *Prescriber) { p.LicenseExpiry = nil }, false},
		{"expired license", func(p *Prescriber) { p.LicenseExpiry = timePtr(now.AddDate(0, 0, -1)) }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := licensedPrescriber(now)
			tc.mutate(p)
			if got := p.CanPrescribe(now); got != tc.want {
				t.Errorf("CanPrescribe = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanPrescribeControlledSubstances(t *testing.T) {
	now := time.Now()

	if licensedPrescriber(now).CanPrescribeControlledSubstances(now) {
		t.Error("prescriber without DEA registration must be denied")
	}
	if !deaPrescriber(now, "II", "III").CanPrescribeControlledSubstances(now) {
		t.Error("prescriber with current DEA registration should be allowed")
	}

	expired := deaPrescriber(now, "II")
	expired.DEAExpiry = timePtr(now.AddDate(0, -1, 0))
	if expired.CanPrescribeControlledSubstances(now) {
		t.Error("expired DEA registration must be denied")
	}

	noSchedules := deaPrescriber(now)
	if noSchedules.CanPrescribeControlledSubstances(now) {
		t.Error("DEA registration without authorized schedules must be denied")
	}
}

func TestCanPrescribeSchedule(t *testing.T) {
	now := time.Now()
	p := deaPrescriber(now, "III", "IV", "V")

	if !p.CanPrescribeSchedule("none", now) {
		t.Error("non-controlled: licensed prescriber should be allowed")
	}
	if !p.CanPrescribeSchedule("IV", now) {
		t.Error("schedule IV is in the authorized set")
	}
	if p.CanPrescribeSchedule("II", now) {
		t.Error("schedule II was not authorized")
	}

	// Non-controlled products do not need a DEA registration.
	if !licensedPrescriber(now).CanPrescribeSchedule("", now) {
		t.Error("empty schedule should only require base authority")
	}
}

func TestCanPrescribe_NilReceiver(t *testing.T) {
	var p *Prescriber
	if p.CanPrescribe(time.Now()) {
		t.Error("nil prescriber must fail closed")
	}
}
