package prescription

import "fmt"

// Interaction is a drug-interaction hit between the prescribed medication
// and one of the patient's active medications.
type Interaction struct {
	NDC           string `json:"ndc"`
	InteractsWith string `json:"interacts_with"`
	Severity      string `json:"severity"`
	Description   string `json:"description"`
}

// Allergy is a documented patient allergy matching the prescribed
// medication.
type Allergy struct {
	Substance string `json:"substance"`
	Reaction  string `json:"reaction"`
}

// ChecklistItem is one clinical-review step supplied by the reviewing
// pharmacist.
type ChecklistItem struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Note   string `json:"note,omitempty"`
}

// VerifyInput carries everything the verification checks need. The caller
// resolves prescriber authority and screening data up front so the checks
// themselves stay pure.
type VerifyInput struct {
	PrescriberAuthorized bool
	MedicationName       string
	Schedule             string
	Interactions         []Interaction
	Allergies            []Allergy
	Checklist            []ChecklistItem
}

// VerifyResult reports the outcome of all checks. Issues preserves check
// order so the same input always yields the same list.
type VerifyResult struct {
	Success bool     `json:"success"`
	Issues  []string `json:"issues"`
}

// VerifyPrescription runs the four verification checks: prescriber
// authority, drug-interaction screen, allergy screen, and the caller's
// clinical checklist. The checks are independent and cumulative. A failing
// check appends an issue and the remaining checks still run, so the
// pharmacist sees every problem at once. No state is read or written here;
// the caller decides what to persist.
func VerifyPrescription(in VerifyInput) VerifyResult {
	issues := []string{}

	if !in.PrescriberAuthorized {
		if in.Schedule != "" && in.Schedule != "none" {
			issues = append(issues, fmt.Sprintf("prescriber is not authorized to prescribe schedule %s controlled substances", in.Schedule))
		} else {
			issues = append(issues, "prescriber is not authorized to prescribe")
		}
	}

	for _, x := range in.Interactions {
		issues = append(issues, fmt.Sprintf("drug interaction (%s): %s interacts with %s: %s",
			x.Severity, in.MedicationName, x.InteractsWith, x.Description))
	}

	for _, a := range in.Allergies {
		issues = append(issues, fmt.Sprintf("patient allergy: %s (reaction: %s)", a.Substance, a.Reaction))
	}

	for _, item := range in.Checklist {
		if item.Passed {
			continue
		}
		msg := fmt.Sprintf("clinical review failed: %s", item.Name)
		if item.Note != "" {
			msg += ": " + item.Note
		}
		issues = append(issues, msg)
	}

	return VerifyResult{Success: len(issues) == 0, Issues: issues}
}
