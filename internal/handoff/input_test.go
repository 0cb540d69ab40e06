package handoff

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreprocessIsIdempotent(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	for _, in := range []string{
		"",
		"   ",
		"CC: cough\r\n\r\nHPI:  three   days",
		"a\r\r\nb",
		"lone\rcarriage\rreturns",
		"tabs\t\tand  spaces \t here\n \n end  ",
		"x\n \n y",
	} {
		once := p.Preprocess(in)
		if twice := p.Preprocess(once); twice != once {
			t.Fatalf("Preprocess not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestPreprocessNormalizes(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	got := p.Preprocess("  Line one\r\nLine  two\t\tend\r\n")
	if got != "Line one\nLine two end" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestValidateShortNoteWarns(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	res := p.Validate("CC: cough for two days")
	if !res.IsValid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
}

func TestValidateLongNoteHasNoWarnings(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	res := p.Validate(strings.Repeat("Patient resting comfortably. ", 3))
	if !res.IsValid || len(res.Warnings) != 0 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	for _, in := range []string{"", "   \n\t"} {
		res := p.Validate(in)
		if res.IsValid {
			t.Fatalf("expected %q to be invalid", in)
		}
		if len(res.Errors) != 1 {
			t.Fatalf("expected one error for %q, got %v", in, res.Errors)
		}
	}
}

func TestValidateRejectsNonPrintable(t *testing.T) {
	p := NewInputProcessor(DefaultRules())

	corrupted := strings.Repeat("a", 80) + strings.Repeat("\x00", 20)
	if res := p.Validate(corrupted); res.IsValid {
		t.Fatal("expected 20% control characters to be invalid")
	}

	binary := strings.Repeat("b", 60) + strings.Repeat("\xff", 20)
	if res := p.Validate(binary); res.IsValid {
		t.Fatal("expected invalid UTF-8 bytes to count as non-printable")
	}

	boundary := strings.Repeat("a", 90) + strings.Repeat("\x01", 10)
	if res := p.Validate(boundary); !res.IsValid {
		t.Fatalf("exactly 10%% non-printable should pass, got %v", res.Errors)
	}

	withWhitespace := strings.Repeat("word\n\t", 20)
	if res := p.Validate(withWhitespace); !res.IsValid {
		t.Fatalf("whitespace is printable, got %v", res.Errors)
	}
}

func TestExtractMetadata(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	text := "Facility: General Hospital\nDepartment: Cardiology\nCC: chest pain, STAT eval"
	meta := p.ExtractMetadata(text)
	if meta.Facility != "General Hospital" {
		t.Fatalf("facility=%q", meta.Facility)
	}
	if meta.Department != "Cardiology" {
		t.Fatalf("department=%q", meta.Department)
	}
	if meta.UrgencyLevel != CriticalityCritical {
		t.Fatalf("urgency=%s want critical", meta.UrgencyLevel)
	}
	if !meta.StructuredDataPresent {
		t.Fatal("expected structured data")
	}
	if meta.DocumentLength != utf8.RuneCountInString(text) {
		t.Fatalf("length=%d", meta.DocumentLength)
	}
}

func TestExtractMetadataUrgency(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	for _, tc := range []struct {
		text string
		want Criticality
	}{
		{"Emergency department transfer", CriticalityCritical},
		{"Critical potassium called to floor", CriticalityCritical},
		{"Urgent consult requested", CriticalityHigh},
		{"Please review ASAP", CriticalityHigh},
		{"Patient critically ill overnight", CriticalityCritical},
		{"Status post appendectomy, continue atorvastatin", CriticalityCritical},
		{"Urgently needs review", CriticalityHigh},
		{"Routine follow up", CriticalityMedium},
	} {
		if got := p.ExtractMetadata(tc.text).UrgencyLevel; got != tc.want {
			t.Fatalf("%q: urgency=%s want=%s", tc.text, got, tc.want)
		}
	}
}

func TestExtractMetadataMissingLabels(t *testing.T) {
	p := NewInputProcessor(DefaultRules())
	meta := p.ExtractMetadata("Facility:\nno department here")
	if meta.Facility != "" || meta.Department != "" {
		t.Fatalf("expected empty labels, got %+v", meta)
	}
	if !meta.StructuredDataPresent {
		t.Fatal("colon and newline present")
	}
}
