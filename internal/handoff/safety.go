package handoff

type SafetyValidator struct {
	rules *Rules
}

func NewSafetyValidator(rules *Rules) *SafetyValidator {
	return &SafetyValidator{rules: rules}
}

// ValidateOutput checks every section summary against the safety rules in
// order, recording the first match of each rule per section. Violation
// locations are byte offsets into that section's summary. The sections are
// not modified.
func (v *SafetyValidator) ValidateOutput(sections []SummarizedSection) SafetyValidation {
	violations := []SafetyViolation{}
	for _, s := range sections {
		for _, rule := range v.rules.safety {
			loc := rule.re.FindStringIndex(s.Summary)
			if loc == nil {
				continue
			}
			violations = append(violations, SafetyViolation{
				Type:        rule.Type,
				Description: rule.Description,
				Severity:    rule.Severity,
				Section:     s.SectionType,
				Location:    TextSpan{Start: loc[0], End: loc[1]},
			})
		}
	}
	return SafetyValidation{IsCompliant: len(violations) == 0, Violations: violations}
}

// SanitizeContent replaces known prescriptive and diagnostic phrasings with
// bracketed markers. The pipeline never calls it.
func (v *SafetyValidator) SanitizeContent(text string) string {
	for _, s := range v.rules.sanitize {
		text = s.re.ReplaceAllLiteralString(text, s.replacement)
	}
	return text
}
