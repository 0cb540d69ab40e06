package handoff

import (
	"fmt"
	"strings"
)

const (
	defaultOverview      = "Patient encounter summary"
	ongoingMonitoring    = "Monitor for changes in clinical status"
	ongoingTimeframe     = "Ongoing"
	routineAssessment    = "Routine assessment"
	bulletSplitThreshold = 3
)

type OutputFormatter struct {
	rules *Rules
}

func NewOutputFormatter(rules *Rules) *OutputFormatter {
	return &OutputFormatter{rules: rules}
}

// GenerateHandoffSummary builds the handoff synthesis. Any red flag at all,
// whatever its own criticality, makes the priority critical; otherwise it is
// high.
func (f *OutputFormatter) GenerateHandoffSummary(sections []SummarizedSection, redFlagCount int) HandoffSummary {
	hs := HandoffSummary{
		BriefOverview: defaultOverview,
		ActionItems:   f.actionItems(sections),
		PriorityLevel: CriticalityHigh,
		PendingActions: []PendingAction{{
			Description: ongoingMonitoring,
			Urgency:     CriticalityMedium,
			Timeframe:   ongoingTimeframe,
		}},
		FollowUpRequirements: []FollowUpRequirement{{
			Type:        FollowUpSymptomMonitoring,
			Description: routineAssessment,
			Priority:    CriticalityMedium,
		}},
	}
	if redFlagCount > 0 {
		hs.PriorityLevel = CriticalityCritical
	}
	for _, s := range sections {
		if s.SectionType == SectionChiefComplaint {
			if strings.TrimSpace(s.Summary) != "" {
				hs.BriefOverview = s.Summary
			}
			break
		}
	}

	seen := map[FollowUpType]bool{}
	for _, s := range sections {
		var fu FollowUpRequirement
		switch s.SectionType {
		case SectionPendingLabs:
			fu = FollowUpRequirement{Type: FollowUpLabResult, Description: "Review pending laboratory results", Priority: CriticalityHigh}
		case SectionPendingTests:
			fu = FollowUpRequirement{Type: FollowUpImagingResult, Description: "Review pending test and imaging results", Priority: CriticalityHigh}
		default:
			continue
		}
		if seen[fu.Type] {
			continue
		}
		seen[fu.Type] = true
		hs.FollowUpRequirements = append(hs.FollowUpRequirements, fu)
	}
	return hs
}

func (f *OutputFormatter) actionItems(sections []SummarizedSection) []string {
	items := []string{}
	if f.rules.actionRe == nil {
		return items
	}
	for _, s := range sections {
		for _, a := range f.rules.actionRe.FindAllString(s.Summary, -1) {
			if len(items) == MaxActionItems {
				return items
			}
			if a = strings.TrimSpace(a); a != "" {
				items = append(items, a)
			}
		}
	}
	return items
}

// Timeline renders the distinct dates and times mentioned in the note, in
// order of appearance. It returns "" when there are none.
func (f *OutputFormatter) Timeline(mentions []TemporalMention) string {
	var dates, times []string
	seen := map[string]bool{}
	for _, m := range mentions {
		key := string(m.Kind) + "|" + strings.ToLower(m.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		switch m.Kind {
		case TemporalDate:
			dates = append(dates, m.Text)
		case TemporalTime:
			times = append(times, m.Text)
		}
	}
	var parts []string
	if len(dates) > 0 {
		parts = append(parts, fmt.Sprintf("Dates mentioned: %s", strings.Join(dates, ", ")))
	}
	if len(times) > 0 {
		parts = append(parts, fmt.Sprintf("Times mentioned: %s", strings.Join(times, ", ")))
	}
	return strings.Join(parts, "; ")
}

// FormatForReview returns copies of sections with comma-heavy summaries turned
// into bullet lines and key points capped. The input slice is not modified.
func (f *OutputFormatter) FormatForReview(sections []SummarizedSection) []SummarizedSection {
	out := make([]SummarizedSection, len(sections))
	for i, s := range sections {
		s.Summary = ensureBulletPoints(s.Summary)
		kp := s.KeyPoints
		if len(kp) > MaxKeyPoints {
			kp = kp[:MaxKeyPoints]
		}
		s.KeyPoints = append([]string{}, kp...)
		if s.SourceQuotes != nil {
			s.SourceQuotes = append([]string{}, s.SourceQuotes...)
		}
		out[i] = s
	}
	return out
}

func ensureBulletPoints(text string) string {
	if strings.Contains(text, "\n- ") || strings.Contains(text, "\n* ") {
		return text
	}
	parts := strings.Split(text, ",")
	if len(parts) <= bulletSplitThreshold {
		return text
	}
	for i, p := range parts {
		parts[i] = "• " + strings.TrimSpace(p)
	}
	return strings.Join(parts, "\n")
}
