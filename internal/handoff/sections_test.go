package handoff

import (
	"strings"
	"testing"
)

func TestClassifyEmptyFallsBack(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	got := c.Classify("")
	if len(got) != 1 {
		t.Fatalf("expected one mapping, got %d", len(got))
	}
	m := got[0]
	if m.SectionType != SectionChiefComplaint || m.Confidence != 0.5 {
		t.Fatalf("unexpected fallback: %+v", m)
	}
	if m.SourceSpan != (TextSpan{Start: 0, End: 0}) {
		t.Fatalf("unexpected span: %+v", m.SourceSpan)
	}
}

func TestClassifyMarkerlessText(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	text := "Patient resting comfortably.\nNo acute events overnight."
	got := c.Classify(text)
	if len(got) != 1 || got[0].SectionType != SectionChiefComplaint || got[0].Confidence != 0.5 {
		t.Fatalf("unexpected mappings: %+v", got)
	}
	if got[0].Content != text || got[0].SourceSpan.End != len(text) {
		t.Fatalf("fallback should cover whole text: %+v", got[0])
	}
}

func TestClassifySplitsOnMarkers(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	text := "Chief Complaint: chest pain\nonset 2 hours ago\nVitals: HR 88\nBP 120/80\nMedications:\naspirin"
	got := c.Classify(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 sections, got %+v", got)
	}
	vitals := strings.Index(text, "Vitals")
	meds := strings.Index(text, "Medications")
	want := []struct {
		typ  SectionType
		span TextSpan
	}{
		{SectionChiefComplaint, TextSpan{0, vitals}},
		{SectionVitals, TextSpan{vitals, meds}},
		{SectionMedications, TextSpan{meds, len(text)}},
	}
	for i, w := range want {
		if got[i].SectionType != w.typ || got[i].SourceSpan != w.span || got[i].Confidence != 0.9 {
			t.Fatalf("section %d: got %+v want type=%s span=%+v", i, got[i], w.typ, w.span)
		}
	}
	if got[0].Content != "Chief Complaint: chest pain\nonset 2 hours ago" {
		t.Fatalf("unexpected content: %q", got[0].Content)
	}
	if got[2].Content != "Medications:\naspirin" {
		t.Fatalf("unexpected content: %q", got[2].Content)
	}
}

func TestClassifyDropsPreamble(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	text := "Dr. Smith progress note\nHPI: cough for 3 days"
	got := c.Classify(text)
	if len(got) != 1 || got[0].SectionType != SectionHistoryPresentIllness {
		t.Fatalf("unexpected mappings: %+v", got)
	}
	if got[0].SourceSpan.Start != strings.Index(text, "HPI") {
		t.Fatalf("span should start at marker line: %+v", got[0].SourceSpan)
	}
}

func TestClassifyTableOrderBreaksTies(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	for _, tc := range []struct {
		line string
		want SectionType
	}{
		{"Imaging: CXR pending", SectionPendingTests},
		{"Assessment: stable", SectionAssessment},
		{"Plan: continue current regimen", SectionPlan},
		{"Social History: nonsmoker", SectionSocialHistory},
		{"  PMH: HTN", SectionPastMedicalHistory},
	} {
		got := c.Classify(tc.line)
		if len(got) != 1 || got[0].SectionType != tc.want || got[0].Confidence != 0.9 {
			t.Fatalf("%q: got %+v want %s", tc.line, got, tc.want)
		}
	}
}

func TestClassifySpansStayInBounds(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	text := "CC: fall\nHPI: tripped\nPMH: htn\nMeds: lisinopril\nAllergies: none\nVitals: HR 70\nPending labs: bmp\nPending tests: ct head\nAssessment: stable"
	for _, m := range c.Classify(text) {
		if m.SourceSpan.Start < 0 || m.SourceSpan.Start > m.SourceSpan.End || m.SourceSpan.End > len(text) {
			t.Fatalf("span out of bounds: %+v", m)
		}
		if !strings.HasPrefix(text[m.SourceSpan.Start:], m.Content) {
			t.Fatalf("content %q does not start at span %+v", m.Content, m.SourceSpan)
		}
	}
}

func TestIdentifyMissingSections(t *testing.T) {
	c := NewSectionClassifier(DefaultRules())
	got := c.IdentifyMissingSections([]SectionMapping{
		{SectionType: SectionChiefComplaint},
		{SectionType: SectionMedications},
	})
	want := []SectionType{SectionHistoryPresentIllness, SectionPastMedicalHistory, SectionAllergies}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
