package handoff

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	medicationConfidence = 0.95
	vitalConfidence      = 0.9
	allergyConfidence    = 0.85
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

type TemporalKind string

const (
	TemporalDate TemporalKind = "date"
	TemporalTime TemporalKind = "time"
)

type TemporalMention struct {
	Kind     TemporalKind `json:"kind"`
	Text     string       `json:"text"`
	Position TextSpan     `json:"position"`
}

type EntityExtractor struct {
	rules *Rules
}

func NewEntityExtractor(rules *Rules) *EntityExtractor {
	return &EntityExtractor{rules: rules}
}

// ExtractEntities returns medications, then vital signs, then allergies.
// Positions are byte offsets into text.
func (e *EntityExtractor) ExtractEntities(text string) []MedicalEntity {
	out := []MedicalEntity{}
	for _, med := range e.rules.medications {
		for _, loc := range med.re.FindAllStringIndex(text, -1) {
			out = append(out, MedicalEntity{
				Text:           text[loc[0]:loc[1]],
				Type:           EntityMedication,
				Confidence:     medicationConfidence,
				Position:       TextSpan{Start: loc[0], End: loc[1]},
				NormalizedForm: capitalize(med.name),
			})
		}
	}
	for _, v := range e.rules.vitals {
		for _, loc := range v.re.FindAllStringIndex(text, -1) {
			out = append(out, MedicalEntity{
				Text:           text[loc[0]:loc[1]],
				Type:           EntityVitalSign,
				Confidence:     vitalConfidence,
				Position:       TextSpan{Start: loc[0], End: loc[1]},
				NormalizedForm: v.name,
			})
		}
	}
	return append(out, e.allergies(text)...)
}

// allergies searches only the segment after the allergy anchor word, up to
// the next blank line. Each allergen is reported once.
func (e *EntityExtractor) allergies(text string) []MedicalEntity {
	if e.rules.allergyAnchor == nil {
		return nil
	}
	anchor := e.rules.allergyAnchor.FindStringIndex(text)
	if anchor == nil {
		return nil
	}
	start := anchor[1]
	end := len(text)
	if loc := blankLine.FindStringIndex(text[start:]); loc != nil {
		end = start + loc[0]
	}
	segment := text[start:end]

	var out []MedicalEntity
	for _, a := range e.rules.allergens {
		loc := a.re.FindStringIndex(segment)
		if loc == nil {
			continue
		}
		out = append(out, MedicalEntity{
			Text:           segment[loc[0]:loc[1]],
			Type:           EntityAllergy,
			Confidence:     allergyConfidence,
			Position:       TextSpan{Start: start + loc[0], End: start + loc[1]},
			NormalizedForm: a.name,
		})
	}
	return out
}

// ResolveAbbreviations expands whole-word abbreviations in a single pass,
// so an expansion is never itself re-expanded.
func (e *EntityExtractor) ResolveAbbreviations(text string) string {
	if e.rules.abbrevRe == nil {
		return text
	}
	return e.rules.abbrevRe.ReplaceAllStringFunc(text, func(m string) string {
		if exp, ok := e.rules.abbrevs[strings.ToLower(m)]; ok {
			return exp
		}
		return m
	})
}

// ExtractTemporal returns date and clock-time mentions ordered by position.
func (e *EntityExtractor) ExtractTemporal(text string) []TemporalMention {
	var out []TemporalMention
	collect := func(re *regexp.Regexp, kind TemporalKind) {
		if re == nil {
			return
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, TemporalMention{
				Kind:     kind,
				Text:     strings.TrimSpace(text[loc[0]:loc[1]]),
				Position: TextSpan{Start: loc[0], End: loc[1]},
			})
		}
	}
	collect(e.rules.dateRe, TemporalDate)
	collect(e.rules.timeRe, TemporalTime)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position.Start < out[j].Position.Start })
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
