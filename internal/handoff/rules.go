package handoff

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

type rulesFile struct {
	Sections         []sectionMarkersFile `yaml:"sections"`
	RequiredSections []SectionType        `yaml:"required_sections"`
	Urgency          []urgencyFile        `yaml:"urgency"`
	Medications      []string             `yaml:"medications"`
	Allergies        allergiesFile        `yaml:"allergies"`
	Vitals           []vitalFile          `yaml:"vitals"`
	Abbreviations    []Abbreviation       `yaml:"abbreviations"`
	Temporal         temporalFile         `yaml:"temporal"`
	RedFlags         redFlagsFile         `yaml:"red_flags"`
	Safety           []safetyFile         `yaml:"safety"`
	Sanitize         []sanitizeFile       `yaml:"sanitize"`
	ActionPattern    string               `yaml:"action_pattern"`
}

type sectionMarkersFile struct {
	Type    SectionType `yaml:"type"`
	Markers []string    `yaml:"markers"`
}

type urgencyFile struct {
	Level    Criticality `yaml:"level"`
	Keywords []string    `yaml:"keywords"`
}

type allergiesFile struct {
	Anchor    string   `yaml:"anchor"`
	Allergens []string `yaml:"allergens"`
}

type vitalFile struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

type Abbreviation struct {
	Abbr      string `yaml:"abbr" json:"abbr"`
	Expansion string `yaml:"expansion" json:"expansion"`
}

type temporalFile struct {
	Date string `yaml:"date"`
	Time string `yaml:"time"`
}

type redFlagsFile struct {
	VitalThresholds []vitalThresholdFile `yaml:"vital_thresholds"`
	Terms           []termFlagFile       `yaml:"terms"`
}

type vitalThresholdFile struct {
	Name          string      `yaml:"name"`
	Section       SectionType `yaml:"section"`
	Pattern       string      `yaml:"pattern"`
	Description   string      `yaml:"description"`
	Rationale     string      `yaml:"rationale"`
	HighAbove     *int        `yaml:"high_above,omitempty"`
	HighBelow     *int        `yaml:"high_below,omitempty"`
	CriticalAbove *int        `yaml:"critical_above,omitempty"`
	CriticalBelow *int        `yaml:"critical_below,omitempty"`
}

type termFlagFile struct {
	Type        RedFlagType `yaml:"type"`
	Section     SectionType `yaml:"section,omitempty"`
	Terms       []string    `yaml:"terms"`
	Criticality Criticality `yaml:"criticality"`
	Description string      `yaml:"description"`
	Rationale   string      `yaml:"rationale"`
	Related     EntityType  `yaml:"related,omitempty"`
}

type safetyFile struct {
	Type        ViolationType `yaml:"type"`
	Pattern     string        `yaml:"pattern"`
	Severity    Criticality   `yaml:"severity"`
	Description string        `yaml:"description"`
}

type sanitizeFile struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Rules is the compiled, read-only form of a rule table. A *Rules is never
// modified after ParseRules returns and may be shared between goroutines.
type Rules struct {
	src rulesFile

	sections      []sectionMarkersFile
	required      []SectionType
	urgency       []urgencyRule
	medications   []vocabTerm
	allergyAnchor *regexp.Regexp
	allergens     []vocabTerm
	vitals        []vitalPattern
	abbrevRe      *regexp.Regexp
	abbrevs       map[string]string
	dateRe        *regexp.Regexp
	timeRe        *regexp.Regexp
	thresholds    []vitalThreshold
	termFlags     []termFlag
	safety        []safetyRule
	sanitize      []sanitizeRule
	actionRe      *regexp.Regexp
}

type urgencyRule struct {
	level Criticality
	re    *regexp.Regexp
}

type vocabTerm struct {
	name string
	re   *regexp.Regexp
}

type vitalPattern struct {
	name string
	re   *regexp.Regexp
}

type vitalThreshold struct {
	vitalThresholdFile
	re *regexp.Regexp
}

// classify returns the criticality for value, or "" when the value is within range.
func (v vitalThreshold) classify(value int) Criticality {
	if (v.CriticalAbove != nil && value > *v.CriticalAbove) || (v.CriticalBelow != nil && value < *v.CriticalBelow) {
		return CriticalityCritical
	}
	if (v.HighAbove != nil && value > *v.HighAbove) || (v.HighBelow != nil && value < *v.HighBelow) {
		return CriticalityHigh
	}
	return ""
}

type termFlag struct {
	termFlagFile
	re *regexp.Regexp
}

type safetyRule struct {
	safetyFile
	re *regexp.Regexp
}

type sanitizeRule struct {
	re          *regexp.Regexp
	replacement string
}

var defaultRules = sync.OnceValue(func() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules.yaml: %v", err))
	}
	return r
})

// DefaultRules returns the rule table compiled into the binary.
func DefaultRules() *Rules { return defaultRules() }

func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return r, nil
}

func ParseRules(data []byte) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return compileRules(f)
}

func compileRules(f rulesFile) (*Rules, error) {
	r := &Rules{src: f, abbrevs: map[string]string{}}

	if len(f.Sections) == 0 {
		return nil, fmt.Errorf("sections: at least one marker group is required")
	}
	for _, s := range f.Sections {
		if !s.Type.Valid() {
			return nil, fmt.Errorf("sections: unknown section type %q", s.Type)
		}
		markers := make([]string, 0, len(s.Markers))
		for _, m := range s.Markers {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				return nil, fmt.Errorf("sections: empty marker for %s", s.Type)
			}
			markers = append(markers, m)
		}
		r.sections = append(r.sections, sectionMarkersFile{Type: s.Type, Markers: markers})
	}
	for _, t := range f.RequiredSections {
		if !t.Valid() {
			return nil, fmt.Errorf("required_sections: unknown section type %q", t)
		}
		r.required = append(r.required, t)
	}

	for _, u := range f.Urgency {
		if !u.Level.Valid() {
			return nil, fmt.Errorf("urgency: unknown level %q", u.Level)
		}
		re, err := termAlternation(u.Keywords)
		if err != nil {
			return nil, fmt.Errorf("urgency %s: %w", u.Level, err)
		}
		r.urgency = append(r.urgency, urgencyRule{level: u.Level, re: re})
	}

	for _, m := range f.Medications {
		r.medications = append(r.medications, vocabTerm{name: strings.ToLower(m), re: substringPattern(m)})
	}
	if a := strings.TrimSpace(f.Allergies.Anchor); a != "" {
		r.allergyAnchor = substringPattern(a)
	}
	for _, a := range f.Allergies.Allergens {
		r.allergens = append(r.allergens, vocabTerm{name: strings.ToLower(a), re: substringPattern(a)})
	}

	for _, v := range f.Vitals {
		re, err := compileCapture(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("vitals %s: %w", v.Name, err)
		}
		r.vitals = append(r.vitals, vitalPattern{name: v.Name, re: re})
	}

	if len(f.Abbreviations) > 0 {
		alts := make([]string, 0, len(f.Abbreviations))
		for _, a := range f.Abbreviations {
			key := strings.ToLower(strings.TrimSpace(a.Abbr))
			if key == "" {
				return nil, fmt.Errorf("abbreviations: empty abbreviation")
			}
			if _, dup := r.abbrevs[key]; dup {
				return nil, fmt.Errorf("abbreviations: duplicate %q", key)
			}
			r.abbrevs[key] = a.Expansion
			alts = append(alts, regexp.QuoteMeta(key))
		}
		r.abbrevRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}

	var err error
	if r.dateRe, err = compileOptional(f.Temporal.Date); err != nil {
		return nil, fmt.Errorf("temporal date: %w", err)
	}
	if r.timeRe, err = compileOptional(f.Temporal.Time); err != nil {
		return nil, fmt.Errorf("temporal time: %w", err)
	}

	for _, v := range f.RedFlags.VitalThresholds {
		if !v.Section.Valid() {
			return nil, fmt.Errorf("vital_thresholds %s: unknown section %q", v.Name, v.Section)
		}
		if v.HighAbove == nil && v.HighBelow == nil && v.CriticalAbove == nil && v.CriticalBelow == nil {
			return nil, fmt.Errorf("vital_thresholds %s: no bounds", v.Name)
		}
		re, err := compileCapture(v.Pattern)
		if err != nil {
			return nil, fmt.Errorf("vital_thresholds %s: %w", v.Name, err)
		}
		r.thresholds = append(r.thresholds, vitalThreshold{vitalThresholdFile: v, re: re})
	}
	for _, t := range f.RedFlags.Terms {
		if !t.Type.Valid() {
			return nil, fmt.Errorf("red flag terms: unknown type %q", t.Type)
		}
		if t.Section != "" && !t.Section.Valid() {
			return nil, fmt.Errorf("red flag terms %s: unknown section %q", t.Type, t.Section)
		}
		if !t.Criticality.Valid() {
			return nil, fmt.Errorf("red flag terms %s: unknown criticality %q", t.Type, t.Criticality)
		}
		if t.Related != "" && !t.Related.Valid() {
			return nil, fmt.Errorf("red flag terms %s: unknown entity type %q", t.Type, t.Related)
		}
		re, err := termAlternation(t.Terms)
		if err != nil {
			return nil, fmt.Errorf("red flag terms %s: %w", t.Type, err)
		}
		r.termFlags = append(r.termFlags, termFlag{termFlagFile: t, re: re})
	}

	for _, s := range f.Safety {
		if !s.Type.Valid() {
			return nil, fmt.Errorf("safety: unknown violation type %q", s.Type)
		}
		if !s.Severity.Valid() {
			return nil, fmt.Errorf("safety %s: unknown severity %q", s.Type, s.Severity)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("safety %s: %w", s.Type, err)
		}
		r.safety = append(r.safety, safetyRule{safetyFile: s, re: re})
	}
	for _, s := range f.Sanitize {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: %w", err)
		}
		r.sanitize = append(r.sanitize, sanitizeRule{re: re, replacement: s.Replacement})
	}

	if r.actionRe, err = compileOptional(f.ActionPattern); err != nil {
		return nil, fmt.Errorf("action_pattern: %w", err)
	}
	return r, nil
}

// YAML renders the effective rule table.
func (r *Rules) YAML() ([]byte, error) {
	return yaml.Marshal(r.src)
}

func (r *Rules) RequiredSections() []SectionType {
	return append([]SectionType(nil), r.required...)
}

func (r *Rules) Abbreviations() []Abbreviation {
	return append([]Abbreviation(nil), r.src.Abbreviations...)
}

func compileCapture(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q needs a capture group", pattern)
	}
	return re, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func substringPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(strings.TrimSpace(term)))
}

// termAlternation matches any of terms anywhere in the text,
// case-insensitively, so "stroke" also matches "strokes" and "stat" matches
// "status". Submatch 1 is the term that matched.
func termAlternation(terms []string) (*regexp.Regexp, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty term list")
	}
	alts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("empty term")
		}
		alts = append(alts, regexp.QuoteMeta(t))
	}
	return regexp.Compile(`(?i)(` + strings.Join(alts, "|") + `)`)
}
