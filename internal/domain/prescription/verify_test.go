package prescription

import (
	"reflect"
	"strings"
	"testing"
)

func TestVerifyPrescription_AllChecksPass(t *testing.T) {
	r := VerifyPrescription(VerifyInput{
		PrescriberAuthorized: true,
		MedicationName:       "Lisinopril 10mg",
		Schedule:             "none",
		Checklist: []ChecklistItem{
			{Name: "dosage appropriate", Passed: true},
			{Name: "directions clear", Passed: true},
		},
	})
	if !r.Success {
		t.Errorf("expected success, got issues %v", r.Issues)
	}
	if len(r.Issues) != 0 {
		t.Errorf("expected empty issue list, got %v", r.Issues)
	}
}

func TestVerifyPrescription_ChecksAreCumulative(t *testing.T) {
	// Every check fails; all four must contribute issues rather than the
	// first failure short-circuiting the rest.
	r := VerifyPrescription(VerifyInput{
		PrescriberAuthorized: false,
		MedicationName:       "Warfarin 5mg",
		Schedule:             "none",
		Interactions: []Interaction{
			{NDC: "a", InteractsWith: "Aspirin 81mg", Severity: "major", Description: "increased bleeding risk"},
		},
		Allergies: []Allergy{
			{Substance: "warfarin", Reaction: "rash"},
		},
		Checklist: []ChecklistItem{
			{Name: "dosage appropriate", Passed: false, Note: "exceeds max daily dose"},
		},
	})
	if r.Success {
		t.Fatal("expected failure")
	}
	if len(r.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %d: %v", len(r.Issues), r.Issues)
	}
	for i, substr := range []string{"not authorized", "drug interaction", "patient allergy", "clinical review failed"} {
		if !strings.Contains(r.Issues[i], substr) {
			t.Errorf("issue %d = %q, want substring %q", i, r.Issues[i], substr)
		}
	}
}

func TestVerifyPrescription_UnauthorizedControlled(t *testing.T) {
	r := VerifyPrescription(VerifyInput{
		PrescriberAuthorized: false,
		MedicationName:       "Oxycodone 5mg",
		Schedule:             "II",
	})
	if r.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(r.Issues[0], "schedule II") {
		t.Errorf("issue = %q, want schedule named", r.Issues[0])
	}
}

func TestVerifyPrescription_Idempotent(t *testing.T) {
	in := VerifyInput{
		PrescriberAuthorized: true,
		MedicationName:       "Metformin 500mg",
		Schedule:             "none",
		Interactions: []Interaction{
			{NDC: "a", InteractsWith: "Contrast dye", Severity: "moderate", Description: "lactic acidosis risk"},
		},
		Checklist: []ChecklistItem{{Name: "renal function reviewed", Passed: false}},
	}
	first := VerifyPrescription(in)
	second := VerifyPrescription(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different results:\n%v\n%v", first, second)
	}
}
