package handoff

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BuildReportMarkdown renders a summary as a review document for the
// receiving clinician.
func BuildReportMarkdown(s StructuredSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Clinical Handoff Summary\n\n")
	fmt.Fprintf(&b, "- Summary ID: %s\n", s.ID)
	fmt.Fprintf(&b, "- Source note: %s\n", s.SourceNoteID)
	fmt.Fprintf(&b, "- Generated: %s\n", s.GeneratedAt.Format(time.RFC3339))
	if s.NoteMetadata.Facility != "" {
		fmt.Fprintf(&b, "- Facility: %s\n", s.NoteMetadata.Facility)
	}
	if s.NoteMetadata.Department != "" {
		fmt.Fprintf(&b, "- Department: %s\n", s.NoteMetadata.Department)
	}
	fmt.Fprintf(&b, "- Note urgency: %s\n\n", s.NoteMetadata.UrgencyLevel)
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	hs := s.HandoffSummary
	fmt.Fprintf(&b, "## Handoff Synthesis\n\n")
	fmt.Fprintf(&b, "Priority: **%s**\n\n", strings.ToUpper(string(hs.PriorityLevel)))
	fmt.Fprintf(&b, "%s\n\n", hs.BriefOverview)
	if hs.TimelineSummary != "" {
		fmt.Fprintf(&b, "Timeline: %s\n\n", hs.TimelineSummary)
	}

	fmt.Fprintf(&b, "### Key Actions\n\n")
	if len(hs.ActionItems) == 0 {
		fmt.Fprintf(&b, "- No action items identified.\n")
	}
	for _, a := range hs.ActionItems {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "### Pending Actions\n\n")
	for _, p := range hs.PendingActions {
		if p.Urgency != "" {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", p.Description, p.Timeframe, p.Urgency)
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Description, p.Timeframe)
		}
	}
	for _, f := range hs.FollowUpRequirements {
		fmt.Fprintf(&b, "- Follow-up `%s`: %s (%s)\n", f.Type, f.Description, f.Priority)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Red Flags\n\n")
	if len(s.RedFlags) == 0 {
		fmt.Fprintf(&b, "No red flags detected.\n\n")
	} else {
		fmt.Fprintf(&b, "| Criticality | Type | Description | Section |\n|---|---|---|---|\n")
		for _, f := range s.RedFlags {
			section := string(f.SourceSection)
			if section == "" {
				section = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", strings.ToUpper(string(f.CriticalityLevel)), f.Type, escapeCell(f.Description), section)
		}
		b.WriteString("\n")
		for _, f := range s.RedFlags {
			fmt.Fprintf(&b, "- **%s**: %s\n", f.Description, f.Rationale)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Structured Findings\n\n")
	for _, sec := range s.Sections {
		fmt.Fprintf(&b, "### %s\n\n", sectionTitle(sec.SectionType))
		fmt.Fprintf(&b, "%s\n\n", sec.Summary)
		for _, kp := range sec.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
		if len(sec.KeyPoints) > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "_Confidence: %.2f_\n\n", sec.ConfidenceScore)
	}

	if len(s.Uncertainties) > 0 {
		fmt.Fprintf(&b, "## Uncertainties\n\n")
		for _, u := range s.Uncertainties {
			fmt.Fprintf(&b, "- %s (impact: %s)\n", u.Description, u.PotentialImpact)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Safety Validation\n\n")
	if s.SafetyValidation.IsCompliant {
		fmt.Fprintf(&b, "No prescriptive, diagnostic or dosage language detected.\n\n")
	} else {
		fmt.Fprintf(&b, "Review required before sharing:\n\n")
		for _, v := range s.SafetyValidation.Violations {
			fmt.Fprintf(&b, "- `%s` (%s) in %s: %s\n", v.Type, v.Severity, sectionTitle(v.Section), v.Description)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Processing\n\n")
	fmt.Fprintf(&b, "- Completeness: %.0f%%\n", s.CompletenessScore*100)
	fmt.Fprintf(&b, "- Summary source: %s\n", s.ProcessingMetadata.SummarySource)
	fmt.Fprintf(&b, "- Stages: %s\n", strings.Join(s.ProcessingMetadata.ComponentsUsed, ", "))
	fmt.Fprintf(&b, "- Processing time: %d ms\n", s.ProcessingMetadata.ProcessingTimeMs)
	for _, w := range s.ProcessingMetadata.WarningsGenerated {
		fmt.Fprintf(&b, "- Warning: %s\n", w)
	}
	fmt.Fprintf(&b, "\n### Source Traceability (JSON)\n\n```json\n%s\n```\n", prettyJSON(s.SourceTraceability))
	return b.String()
}

func sectionTitle(t SectionType) string {
	if t == "" {
		return "Unknown"
	}
	return titleWords(strings.ReplaceAll(string(t), "_", " "))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
