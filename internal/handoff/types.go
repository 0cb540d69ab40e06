package handoff

import "time"

const Disclaimer = "This summary is produced by heuristic pattern rules and an optional generative model. " +
	"It is not a certified clinical decision-support output. " +
	"A qualified clinician must review the source note before acting on it."

const (
	// CompletenessTarget is the section count that yields a completeness score of 1.0.
	CompletenessTarget = 8
	MinNoteChars       = 50
	MaxKeyPoints       = 5
	MaxActionItems     = 3
)

type SectionType string

const (
	SectionChiefComplaint        SectionType = "CHIEF_COMPLAINT"
	SectionHistoryPresentIllness SectionType = "HISTORY_PRESENT_ILLNESS"
	SectionPastMedicalHistory    SectionType = "PAST_MEDICAL_HISTORY"
	SectionMedications           SectionType = "MEDICATIONS"
	SectionAllergies             SectionType = "ALLERGIES"
	SectionVitals                SectionType = "VITALS"
	SectionPendingTests          SectionType = "PENDING_TESTS"
	SectionPendingLabs           SectionType = "PENDING_LABS"
	SectionAssessment            SectionType = "ASSESSMENT"
	SectionPlan                  SectionType = "PLAN"
	SectionHistory               SectionType = "HISTORY"
	SectionLabs                  SectionType = "LABS"
	SectionImaging               SectionType = "IMAGING"
	SectionProcedure             SectionType = "PROCEDURE"
	SectionSocialHistory         SectionType = "SOCIAL_HISTORY"
	SectionFamilyHistory         SectionType = "FAMILY_HISTORY"
)

func (s SectionType) Valid() bool {
	switch s {
	case SectionChiefComplaint, SectionHistoryPresentIllness, SectionPastMedicalHistory,
		SectionMedications, SectionAllergies, SectionVitals, SectionPendingTests, SectionPendingLabs,
		SectionAssessment, SectionPlan, SectionHistory, SectionLabs, SectionImaging, SectionProcedure,
		SectionSocialHistory, SectionFamilyHistory:
		return true
	}
	return false
}

type EntityType string

const (
	EntityMedication EntityType = "medication"
	EntityCondition  EntityType = "condition"
	EntityProcedure  EntityType = "procedure"
	EntityVitalSign  EntityType = "vital_sign"
	EntityAllergy    EntityType = "allergy"
	EntitySymptom    EntityType = "symptom"
	EntityAnatomy    EntityType = "anatomy"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityMedication, EntityCondition, EntityProcedure, EntityVitalSign, EntityAllergy, EntitySymptom, EntityAnatomy:
		return true
	}
	return false
}

type RedFlagType string

const (
	FlagAbnormalVitals      RedFlagType = "abnormal_vitals"
	FlagSevereAllergy       RedFlagType = "severe_allergy"
	FlagDrugInteraction     RedFlagType = "drug_interaction"
	FlagUrgentLanguage      RedFlagType = "urgent_language"
	FlagCriticalLab         RedFlagType = "critical_lab"
	FlagPendingCriticalTest RedFlagType = "pending_critical_test"
	FlagSignificantFinding  RedFlagType = "find_significant_finding"
	FlagAbnormalLab         RedFlagType = "abnormal_lab"
	FlagVitalInstability    RedFlagType = "vital_instability"
	FlagSafetyRisk          RedFlagType = "safety_risk"
	FlagUrgentFinding       RedFlagType = "urgent_finding"
)

func (t RedFlagType) Valid() bool {
	switch t {
	case FlagAbnormalVitals, FlagSevereAllergy, FlagDrugInteraction, FlagUrgentLanguage, FlagCriticalLab,
		FlagPendingCriticalTest, FlagSignificantFinding, FlagAbnormalLab, FlagVitalInstability,
		FlagSafetyRisk, FlagUrgentFinding:
		return true
	}
	return false
}

// generativeFlagType reports whether t is one of the types the generative
// summarizer is allowed to emit.
func generativeFlagType(t RedFlagType) bool {
	switch t {
	case FlagVitalInstability, FlagAbnormalLab, FlagSafetyRisk, FlagUrgentFinding:
		return true
	}
	return false
}

// Criticality is the shared low..critical scale used for red flags, violation
// severity, handoff priority and note urgency.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

func (c Criticality) Valid() bool {
	switch c {
	case CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityCritical:
		return true
	}
	return false
}

type ViolationType string

const (
	ViolationDiagnosticStatement     ViolationType = "diagnostic_statement"
	ViolationTreatmentRecommendation ViolationType = "treatment_recommendation"
	ViolationMedicationDosage        ViolationType = "medication_dosage"
	ViolationMedicalAdvice           ViolationType = "medical_advice"
)

func (v ViolationType) Valid() bool {
	switch v {
	case ViolationDiagnosticStatement, ViolationTreatmentRecommendation, ViolationMedicationDosage, ViolationMedicalAdvice:
		return true
	}
	return false
}

type FollowUpType string

const (
	FollowUpLabResult         FollowUpType = "lab_result"
	FollowUpImagingResult     FollowUpType = "imaging_result"
	FollowUpSpecialistConsult FollowUpType = "specialist_consult"
	FollowUpMedicationReview  FollowUpType = "medication_review"
	FollowUpSymptomMonitoring FollowUpType = "symptom_monitoring"
)

type TransformationType string

const (
	TransformCleaning              TransformationType = "cleaning"
	TransformNormalization         TransformationType = "normalization"
	TransformAbbreviationExpansion TransformationType = "abbreviation_expansion"
	TransformSectionExtraction     TransformationType = "section_extraction"
)

type SummarySource string

const (
	SourceLocal      SummarySource = "local"
	SourceGenerative SummarySource = "generative"
)

// TextSpan holds byte offsets into a single text buffer (always the
// normalized note, never the raw input).
type TextSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type MedicalEntity struct {
	Text           string     `json:"text"`
	Type           EntityType `json:"type"`
	Confidence     float64    `json:"confidence"`
	Position       TextSpan   `json:"position"`
	NormalizedForm string     `json:"normalizedForm,omitempty"`
}

type SectionMapping struct {
	SectionType SectionType `json:"sectionType"`
	Content     string      `json:"content"`
	Confidence  float64     `json:"confidence"`
	SourceSpan  TextSpan    `json:"sourceSpan"`
}

type SummarizedSection struct {
	SectionType     SectionType `json:"sectionType"`
	Summary         string      `json:"summary"`
	KeyPoints       []string    `json:"keyPoints"`
	ConfidenceScore float64     `json:"confidenceScore"`
	SourceQuotes    []string    `json:"sourceQuotes,omitempty"`
}

type RedFlag struct {
	Type             RedFlagType     `json:"type"`
	Description      string          `json:"description"`
	SourceSection    SectionType     `json:"sourceSection,omitempty"`
	CriticalityLevel Criticality     `json:"criticalityLevel"`
	Rationale        string          `json:"rationale"`
	RelatedEntities  []MedicalEntity `json:"relatedEntities"`
}

type SafetyViolation struct {
	Type        ViolationType `json:"type"`
	Description string        `json:"description"`
	Severity    Criticality   `json:"severity"`
	Section     SectionType   `json:"section"`
	Location    TextSpan      `json:"location"`
}

type SafetyValidation struct {
	IsCompliant bool              `json:"isCompliant"`
	Violations  []SafetyViolation `json:"violations"`
}

type Uncertainty struct {
	Description     string `json:"description"`
	PotentialImpact string `json:"potentialImpact"`
}

type PendingAction struct {
	Description string      `json:"description"`
	Urgency     Criticality `json:"urgency,omitempty"`
	Timeframe   string      `json:"timeframe"`
}

type FollowUpRequirement struct {
	Type        FollowUpType `json:"type"`
	Description string       `json:"description"`
	Priority    Criticality  `json:"priority"`
}

type HandoffSummary struct {
	BriefOverview        string                `json:"briefOverview"`
	ActionItems          []string              `json:"actionItems"`
	TimelineSummary      string                `json:"timelineSummary,omitempty"`
	PriorityLevel        Criticality           `json:"priorityLevel"`
	PendingActions       []PendingAction       `json:"pendingActions"`
	FollowUpRequirements []FollowUpRequirement `json:"followUpRequirements"`
}

type ProcessingMetadata struct {
	ProcessingTimeMs  int64         `json:"processingTime"`
	ComponentsUsed    []string      `json:"componentsUsed"`
	WarningsGenerated []string      `json:"warningsGenerated"`
	SummarySource     SummarySource `json:"summarySource"`
	MissingSections   []SectionType `json:"missingSections,omitempty"`
}

type NoteMetadata struct {
	Facility              string      `json:"facility,omitempty"`
	Department            string      `json:"department,omitempty"`
	UrgencyLevel          Criticality `json:"urgencyLevel"`
	DocumentLength        int         `json:"documentLength"`
	StructuredDataPresent bool        `json:"structuredDataPresent"`
}

type SourceTrace struct {
	SectionType    SectionType        `json:"sectionType"`
	Span           TextSpan           `json:"span"`
	Transformation TransformationType `json:"transformationType"`
}

// StructuredSummary is the single result of one pipeline run. It is built
// once by Pipeline and has no mutators.
type StructuredSummary struct {
	ID                 string              `json:"id"`
	SourceNoteID       string              `json:"sourceNoteId"`
	GeneratedAt        time.Time           `json:"generatedAt"`
	Sections           []SummarizedSection `json:"sections"`
	RedFlags           []RedFlag           `json:"redFlags"`
	Uncertainties      []Uncertainty       `json:"uncertainties,omitempty"`
	HandoffSummary     HandoffSummary      `json:"handoffSummary"`
	CompletenessScore  float64             `json:"completenessScore"`
	SafetyValidation   SafetyValidation    `json:"safetyValidation"`
	ProcessingMetadata ProcessingMetadata  `json:"processingMetadata"`
	NoteMetadata       NoteMetadata        `json:"noteMetadata"`
	Entities           []MedicalEntity     `json:"entities"`
	SourceTraceability []SourceTrace       `json:"sourceTraceability"`
}

// CompletenessScore is len(sections)/8. It is deliberately not clamped: a note
// with repeated headings can score above 1.0.
func CompletenessScore(sectionCount int) float64 {
	return float64(sectionCount) / CompletenessTarget
}

type NoteRequest struct {
	NoteID string `json:"note_id,omitempty"`
	Text   string `json:"text"`
}
