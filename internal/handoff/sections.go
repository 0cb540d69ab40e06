package handoff

import "strings"

const (
	markedSectionConfidence   = 0.9
	fallbackSectionConfidence = 0.5
)

type SectionClassifier struct {
	rules *Rules
}

func NewSectionClassifier(rules *Rules) *SectionClassifier {
	return &SectionClassifier{rules: rules}
}

// Classify splits text into sections at marker lines. A marker line belongs to
// the section it opens; lines before the first marker belong to no section.
// Text without any marker becomes a single CHIEF_COMPLAINT section.
func (c *SectionClassifier) Classify(text string) []SectionMapping {
	var (
		out     []SectionMapping
		current SectionType
		content []string
		start   int
		open    bool
	)
	closeSection := func(end int) {
		out = append(out, SectionMapping{
			SectionType: current,
			Content:     strings.TrimSpace(strings.Join(content, "\n")),
			Confidence:  markedSectionConfidence,
			SourceSpan:  TextSpan{Start: start, End: end},
		})
	}

	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if t, ok := c.markerType(line); ok {
			if open {
				closeSection(offset)
			}
			current, content, start, open = t, []string{line}, offset, true
		} else if open {
			content = append(content, line)
		}
		offset += len(line) + 1
	}
	if open {
		closeSection(len(text))
	}

	if len(out) == 0 {
		out = append(out, SectionMapping{
			SectionType: SectionChiefComplaint,
			Content:     text,
			Confidence:  fallbackSectionConfidence,
			SourceSpan:  TextSpan{Start: 0, End: len(text)},
		})
	}
	return out
}

func (c *SectionClassifier) markerType(line string) (SectionType, bool) {
	l := strings.ToLower(strings.TrimSpace(line))
	if l == "" {
		return "", false
	}
	for _, s := range c.rules.sections {
		for _, m := range s.Markers {
			if strings.HasPrefix(l, m) {
				return s.Type, true
			}
		}
	}
	return "", false
}

// IdentifyMissingSections reports required section types absent from mappings.
func (c *SectionClassifier) IdentifyMissingSections(mappings []SectionMapping) []SectionType {
	present := make(map[SectionType]bool, len(mappings))
	for _, m := range mappings {
		present[m.SectionType] = true
	}
	var missing []SectionType
	for _, t := range c.rules.required {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	return missing
}
