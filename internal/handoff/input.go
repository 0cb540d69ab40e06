package handoff

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNonPrintableRatio = 0.1

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	facilityLine    = regexp.MustCompile(`(?i)facility:[ \t]*([^\n]*)`)
	departmentLine  = regexp.MustCompile(`(?i)department:[ \t]*([^\n]*)`)
)

type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type InputProcessor struct {
	rules *Rules
}

func NewInputProcessor(rules *Rules) *InputProcessor {
	return &InputProcessor{rules: rules}
}

func (p *InputProcessor) Validate(text string) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if strings.TrimSpace(text) == "" {
		res.Errors = append(res.Errors, "Clinical note cannot be empty.")
	}
	n := utf8.RuneCountInString(text)
	if n > 0 && n < MinNoteChars {
		res.Warnings = append(res.Warnings, "Clinical note is very short, which might lead to an incomplete summary.")
	}
	if n > 0 && float64(countNonPrintable(text)) > float64(n)*maxNonPrintableRatio {
		res.Errors = append(res.Errors, "Clinical note appears to contain corrupted or non-text data.")
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

func countNonPrintable(text string) int {
	count := 0
	for _, r := range text {
		if r == utf8.RuneError || !(unicode.IsPrint(r) || unicode.IsSpace(r)) {
			count++
		}
	}
	return count
}

// Preprocess normalizes line endings to LF, collapses runs of spaces and
// tabs, and trims the result. Preprocess(Preprocess(x)) == Preprocess(x).
func (p *InputProcessor) Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (p *InputProcessor) ExtractMetadata(text string) NoteMetadata {
	return NoteMetadata{
		Facility:              labeledValue(text, facilityLine),
		Department:            labeledValue(text, departmentLine),
		UrgencyLevel:          p.urgency(text),
		DocumentLength:        utf8.RuneCountInString(text),
		StructuredDataPresent: strings.Contains(text, ":") && strings.Contains(text, "\n"),
	}
}

func labeledValue(text string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// urgency walks the urgency table in order; text matching no keyword is medium.
func (p *InputProcessor) urgency(text string) Criticality {
	for _, u := range p.rules.urgency {
		if u.re.MatchString(text) {
			return u.level
		}
	}
	return CriticalityMedium
}
