package handoff

import "testing"

// The completeness score is len(sections)/8 and is not clamped: notes with
// repeated or extra headings score above 1.0. Kept as observed behavior.
func TestCompletenessScoreIsUnclamped(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0.125},
		{4, 0.5},
		{8, 1},
		{10, 1.25},
		{16, 2},
	} {
		if got := CompletenessScore(tc.n); got != tc.want {
			t.Fatalf("CompletenessScore(%d)=%v want %v", tc.n, got, tc.want)
		}
	}
}

func TestEnumsValid(t *testing.T) {
	if !SectionFamilyHistory.Valid() || SectionType("NOTES").Valid() {
		t.Fatal("section type validation")
	}
	if !FlagUrgentFinding.Valid() || RedFlagType("scary").Valid() {
		t.Fatal("red flag type validation")
	}
	if !CriticalityLow.Valid() || Criticality("severe").Valid() {
		t.Fatal("criticality validation")
	}
	if !EntityAnatomy.Valid() || EntityType("drug").Valid() {
		t.Fatal("entity type validation")
	}
	if !ViolationMedicalAdvice.Valid() || ViolationType("other").Valid() {
		t.Fatal("violation type validation")
	}
	if generativeFlagType(FlagAbnormalVitals) || !generativeFlagType(FlagSafetyRisk) {
		t.Fatal("generative flag subset")
	}
}
