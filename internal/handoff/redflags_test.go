package handoff

import "testing"

func vitalsSection(summary string) SummarizedSection {
	return SummarizedSection{SectionType: SectionVitals, Summary: summary}
}

func TestDetectHeartRate(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	for _, tc := range []struct {
		summary string
		want    Criticality
	}{
		{"HR: 130", CriticalityCritical},
		{"HR: 105", CriticalityHigh},
		{"HR: 120", CriticalityHigh},
		{"HR: 55", CriticalityHigh},
		{"HR: 45", CriticalityCritical},
		{"HR: 80", ""},
		{"HR: 100", ""},
		{"HR: 60", ""},
	} {
		flags := d.Detect([]SummarizedSection{vitalsSection(tc.summary)}, nil)
		if tc.want == "" {
			if len(flags) != 0 {
				t.Fatalf("%q: expected no flags, got %+v", tc.summary, flags)
			}
			continue
		}
		if len(flags) != 1 {
			t.Fatalf("%q: expected one flag, got %+v", tc.summary, flags)
		}
		if flags[0].CriticalityLevel != tc.want || flags[0].Type != FlagAbnormalVitals {
			t.Fatalf("%q: got %+v want %s", tc.summary, flags[0], tc.want)
		}
	}
}

func TestDetectHeartRateDescription(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{vitalsSection("HR: 130 later HR: 140")}, nil)
	if len(flags) != 1 {
		t.Fatalf("expected first token only, got %+v", flags)
	}
	if flags[0].Description != "Abnormal heart rate: 130 bpm" {
		t.Fatalf("unexpected description %q", flags[0].Description)
	}
	if flags[0].SourceSection != SectionVitals {
		t.Fatalf("unexpected section %s", flags[0].SourceSection)
	}
}

func TestDetectOxygenSaturation(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{vitalsSection("SpO2: 88")}, nil)
	if len(flags) != 1 || flags[0].CriticalityLevel != CriticalityCritical {
		t.Fatalf("expected critical flag, got %+v", flags)
	}
	if flags[0].Description != "Low oxygen saturation: 88%" {
		t.Fatalf("unexpected description %q", flags[0].Description)
	}
	flags = d.Detect([]SummarizedSection{vitalsSection("SpO2: 92")}, nil)
	if len(flags) != 1 || flags[0].CriticalityLevel != CriticalityHigh {
		t.Fatalf("expected high flag, got %+v", flags)
	}
	if flags = d.Detect([]SummarizedSection{vitalsSection("SpO2: 97%")}, nil); len(flags) != 0 {
		t.Fatalf("expected no flags, got %+v", flags)
	}
}

func TestDetectVitalsOnlyInVitalsSections(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{{SectionType: SectionChiefComplaint, Summary: "HR: 130, SpO2: 85"}}, nil)
	if len(flags) != 0 {
		t.Fatalf("vital thresholds should only apply to VITALS, got %+v", flags)
	}
}

func TestDetectVitalRelatedEntities(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	entities := []MedicalEntity{
		{Text: "HR: 130", Type: EntityVitalSign},
		{Text: "BP: 120/80", Type: EntityVitalSign},
		{Text: "130", Type: EntityMedication},
	}
	flags := d.Detect([]SummarizedSection{vitalsSection("HR: 130")}, entities)
	if len(flags) != 1 {
		t.Fatalf("expected one flag, got %+v", flags)
	}
	if len(flags[0].RelatedEntities) != 1 || flags[0].RelatedEntities[0].Text != "HR: 130" {
		t.Fatalf("unexpected related entities: %+v", flags[0].RelatedEntities)
	}
}

func TestDetectSevereAllergy(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	entities := []MedicalEntity{
		{Text: "penicillin", Type: EntityAllergy},
		{Text: "aspirin", Type: EntityMedication},
	}
	flags := d.Detect([]SummarizedSection{{SectionType: SectionAllergies, Summary: "Penicillin - anaphylaxis"}}, entities)
	if len(flags) != 1 {
		t.Fatalf("expected one flag, got %+v", flags)
	}
	f := flags[0]
	if f.Type != FlagSevereAllergy || f.CriticalityLevel != CriticalityHigh || f.SourceSection != SectionAllergies {
		t.Fatalf("unexpected flag: %+v", f)
	}
	if len(f.RelatedEntities) != 1 || f.RelatedEntities[0].Type != EntityAllergy {
		t.Fatalf("expected allergy entities only, got %+v", f.RelatedEntities)
	}

	if flags := d.Detect([]SummarizedSection{{SectionType: SectionHistory, Summary: "hives as a child"}}, entities); len(flags) != 0 {
		t.Fatalf("allergy rule should only apply to ALLERGIES, got %+v", flags)
	}
}

func TestDetectUrgentLanguageInAnySection(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{{SectionType: SectionChiefComplaint, Summary: "Chest pain radiating to left arm"}}, nil)
	if len(flags) != 1 {
		t.Fatalf("expected one flag, got %+v", flags)
	}
	if flags[0].Type != FlagUrgentLanguage || flags[0].CriticalityLevel != CriticalityCritical {
		t.Fatalf("unexpected flag: %+v", flags[0])
	}
	if flags[0].Description != "Urgent clinical language detected: Chest Pain" {
		t.Fatalf("unexpected description %q", flags[0].Description)
	}
	if flags[0].RelatedEntities == nil {
		t.Fatal("related entities should be an empty list, not nil")
	}
}

func TestDetectUrgentTermsMatchSubstrings(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{{SectionType: SectionPastMedicalHistory, Summary: "History of strokes, now critically ill"}}, nil)
	if len(flags) != 1 || flags[0].CriticalityLevel != CriticalityCritical {
		t.Fatalf("expected one critical flag, got %+v", flags)
	}
	if flags[0].Description != "Urgent clinical language detected: Stroke" {
		t.Fatalf("unexpected description %q", flags[0].Description)
	}

	// "stat" inside "status" also flags.
	flags = d.Detect([]SummarizedSection{{SectionType: SectionMedications, Summary: "Status post appendectomy; on atorvastatin"}}, nil)
	if len(flags) != 1 || flags[0].Description != "Urgent clinical language detected: Stat" {
		t.Fatalf("expected status to flag as stat, got %+v", flags)
	}

	flags = d.Detect([]SummarizedSection{{SectionType: SectionPlan, Summary: "Repeat troponin STAT"}}, nil)
	if len(flags) != 1 {
		t.Fatalf("expected STAT to flag, got %+v", flags)
	}
}

func TestDetectRulesAreIndependent(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	flags := d.Detect([]SummarizedSection{vitalsSection("HR: 130, SpO2: 88, patient unresponsive")}, nil)
	if len(flags) != 3 {
		t.Fatalf("expected three flags, got %+v", flags)
	}
	if flags[0].Description != "Abnormal heart rate: 130 bpm" || flags[1].Description != "Low oxygen saturation: 88%" {
		t.Fatalf("vital flags should come first: %+v", flags)
	}
	if flags[2].Type != FlagUrgentLanguage || flags[2].Description != "Urgent clinical language detected: Unresponsive" {
		t.Fatalf("unexpected urgent flag: %+v", flags[2])
	}
}

func TestDetectScansKeyPoints(t *testing.T) {
	d := NewRedFlagDetector(DefaultRules())
	s := SummarizedSection{SectionType: SectionVitals, Summary: "Vitals reviewed", KeyPoints: []string{"HR: 125"}}
	flags := d.Detect([]SummarizedSection{s}, nil)
	if len(flags) != 1 || flags[0].CriticalityLevel != CriticalityCritical {
		t.Fatalf("expected key point to flag, got %+v", flags)
	}
}
