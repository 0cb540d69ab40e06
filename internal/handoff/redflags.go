package handoff

import (
	"fmt"
	"strconv"
	"strings"
)

type RedFlagDetector struct {
	rules *Rules
}

func NewRedFlagDetector(rules *Rules) *RedFlagDetector {
	return &RedFlagDetector{rules: rules}
}

// Detect applies the vital threshold rules and then the term rules. Rules are
// independent: one section can raise several flags, but each rule fires at
// most once per section.
func (d *RedFlagDetector) Detect(sections []SummarizedSection, entities []MedicalEntity) []RedFlag {
	flags := []RedFlag{}
	for _, s := range sections {
		content := scanText(s)
		for _, v := range d.rules.thresholds {
			if s.SectionType != v.Section {
				continue
			}
			m := v.re.FindStringSubmatch(content)
			if m == nil {
				continue
			}
			value, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			level := v.classify(value)
			if level == "" {
				continue
			}
			flags = append(flags, RedFlag{
				Type:             FlagAbnormalVitals,
				Description:      fmt.Sprintf(v.Description, value),
				SourceSection:    s.SectionType,
				CriticalityLevel: level,
				Rationale:        v.Rationale,
				RelatedEntities:  vitalEntitiesContaining(entities, m[1]),
			})
		}
	}

	for _, t := range d.rules.termFlags {
		for _, s := range sections {
			if t.Section != "" && s.SectionType != t.Section {
				continue
			}
			m := t.re.FindStringSubmatch(scanText(s))
			if m == nil {
				continue
			}
			desc := t.Description
			if strings.Contains(desc, "%s") {
				desc = fmt.Sprintf(desc, titleWords(m[1]))
			}
			flags = append(flags, RedFlag{
				Type:             t.Type,
				Description:      desc,
				SourceSection:    s.SectionType,
				CriticalityLevel: t.Criticality,
				Rationale:        t.Rationale,
				RelatedEntities:  entitiesOfType(entities, t.Related),
			})
		}
	}
	return flags
}

func scanText(s SummarizedSection) string {
	if len(s.KeyPoints) == 0 {
		return s.Summary
	}
	return s.Summary + "\n" + strings.Join(s.KeyPoints, "\n")
}

func vitalEntitiesContaining(entities []MedicalEntity, value string) []MedicalEntity {
	out := []MedicalEntity{}
	for _, e := range entities {
		if e.Type == EntityVitalSign && strings.Contains(e.Text, value) {
			out = append(out, e)
		}
	}
	return out
}

func entitiesOfType(entities []MedicalEntity, t EntityType) []MedicalEntity {
	out := []MedicalEntity{}
	if t == "" {
		return out
	}
	for _, e := range entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func titleWords(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}
